package asset

import (
	"crypto/md5"
	"encoding/hex"
	"sync/atomic"

	"github.com/netdata/assets/pipeline/resolve"
	"github.com/netdata/assets/pkg/model"
)

// Assembler is the part of the pipeline a reference drives.
type Assembler interface {
	Assemble(typ model.AssetType, members []string, data interface{}, forSignature bool) (string, error)
	Minify(typ model.AssetType, text string) (string, error)
	Sources(typ model.AssetType, members []string) ([]resolve.Source, error)
}

type Options struct {
	Minify       bool
	VersionToken string
}

// Reference is a servable asset: a logical name backed by one or more members.
// Content and signature are computed on first use and kept for the lifetime of
// the reference. Concurrent first calls may both compute, the first published
// value wins and is what every caller gets.
type Reference struct {
	typ     model.AssetType
	name    string
	members []string

	pipe Assembler
	opts Options

	content   atomic.Pointer[string]
	signature atomic.Pointer[string]
}

// New creates a reference. With no members the reference stands for the
// single member named like itself.
func New(typ model.AssetType, name string, members []string, pipe Assembler, opts Options) *Reference {
	if len(members) == 0 {
		members = []string{name}
	}
	return &Reference{
		typ:     typ,
		name:    name,
		members: append([]string(nil), members...),
		pipe:    pipe,
		opts:    opts,
	}
}

func (r *Reference) Type() model.AssetType { return r.typ }
func (r *Reference) Name() string          { return r.name }

func (r *Reference) MemberNames() []string {
	return append([]string(nil), r.members...)
}

// Content returns the served text: assembled, rebased and, when enabled,
// minified. data is only consulted on the first successful call.
func (r *Reference) Content(data interface{}) (string, error) {
	if v := r.content.Load(); v != nil {
		return *v, nil
	}

	text, err := r.pipe.Assemble(r.typ, r.members, data, false)
	if err != nil {
		return "", err
	}
	if r.opts.Minify {
		if text, err = r.pipe.Minify(r.typ, text); err != nil {
			return "", err
		}
	}
	return publish(&r.content, text), nil
}

// Signature returns the md5 hex digest of the rendered and compiled members,
// before url rebasing and minification, prefixed with the version token if any.
func (r *Reference) Signature(data interface{}) (string, error) {
	if v := r.signature.Load(); v != nil {
		return *v, nil
	}

	text, err := r.pipe.Assemble(r.typ, r.members, data, true)
	if err != nil {
		return "", err
	}
	return publish(&r.signature, Digest(text, r.opts.VersionToken)), nil
}

// Paths resolves the source file of every member.
func (r *Reference) Paths() ([]string, error) {
	sources, err := r.pipe.Sources(r.typ, r.members)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(sources))
	for _, src := range sources {
		paths = append(paths, src.Path)
	}
	return paths, nil
}

func (r *Reference) String() string {
	return r.typ.String() + "/" + r.name
}

func Digest(text, versionToken string) string {
	sum := md5.Sum([]byte(text))
	digest := hex.EncodeToString(sum[:])
	if versionToken == "" {
		return digest
	}
	return versionToken + "-" + digest
}

func publish(p *atomic.Pointer[string], v string) string {
	if p.CompareAndSwap(nil, &v) {
		return v
	}
	return *p.Load()
}
