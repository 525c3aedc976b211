package pipeline

import (
	"os"
	"strings"

	"github.com/netdata/assets/pipeline/render"
	"github.com/netdata/assets/pipeline/resolve"
	"github.com/netdata/assets/pipeline/transform"
	"github.com/netdata/assets/pkg/log"
	"github.com/netdata/assets/pkg/model"

	"github.com/rs/zerolog"
)

type Resolver interface {
	Resolve(typ model.AssetType, member string) (resolve.Source, error)
}

type Renderer interface {
	Render(path, src string, data interface{}) (string, error)
}

type Transformer interface {
	Compile(src resolve.Source, text string) (string, error)
	Rewrite(typ model.AssetType, member, text string) string
	Minify(typ model.AssetType, text string) (string, error)
}

// Separator joins member outputs of a combined asset.
const Separator = "\n"

type Pipeline struct {
	Resolver
	Renderer
	Transformer

	readFile func(string) ([]byte, error)
	log      zerolog.Logger
}

func New(resolver Resolver, renderer Renderer, transformer Transformer) *Pipeline {
	return &Pipeline{
		Resolver:    resolver,
		Renderer:    renderer,
		Transformer: transformer,
		readFile:    os.ReadFile,
		log:         log.New("pipeline"),
	}
}

// NewDefault wires the file resolver, the template renderer and the
// sass/minify transformer for a project root.
func NewDefault(projectRoot, relativeRoot string) *Pipeline {
	return New(resolve.New(projectRoot), render.New(), transform.New(relativeRoot))
}

// Assemble produces the combined text of the members in order. Every member is
// read, rendered when it is a template and compiled when it is a stylesheet
// dialect. Unless forSignature is set, stylesheet urls are also rebased on the
// member. The result is never minified.
func (p *Pipeline) Assemble(typ model.AssetType, members []string, data interface{}, forSignature bool) (string, error) {
	if !typ.Valid() {
		return "", model.UnknownTypeError{Type: typ.String()}
	}

	parts := make([]string, 0, len(members))
	for _, member := range members {
		text, err := p.assembleMember(typ, member, data, forSignature)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, Separator), nil
}

func (p *Pipeline) assembleMember(typ model.AssetType, member string, data interface{}, forSignature bool) (string, error) {
	src, err := p.Resolve(typ, member)
	if err != nil {
		return "", err
	}

	bs, err := p.readFile(src.Path)
	if err != nil {
		return "", err
	}
	text := string(bs)

	if src.Template {
		if text, err = p.Render(src.Path, text, data); err != nil {
			p.log.Warn().Err(err).Msgf("failed to render '%s'", src.Path)
			return "", err
		}
	}

	if text, err = p.Compile(src, text); err != nil {
		p.log.Warn().Err(err).Msgf("failed to compile '%s'", src.Path)
		return "", err
	}

	if forSignature {
		return text, nil
	}
	return p.Rewrite(typ, member, text), nil
}

// Sources resolves every member without reading it.
func (p *Pipeline) Sources(typ model.AssetType, members []string) ([]resolve.Source, error) {
	sources := make([]resolve.Source, 0, len(members))
	for _, member := range members {
		src, err := p.Resolve(typ, member)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
