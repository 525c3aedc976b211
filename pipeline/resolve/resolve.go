package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/netdata/assets/pkg/model"
)

type (
	// Resolver maps a member name onto a source file. Each asset type has an
	// ordered list of candidate root directories: the first one that exists is
	// searched, the others are never consulted file by file.
	Resolver struct {
		roots map[model.AssetType][]string
		stat  func(string) (os.FileInfo, error)
	}
	// Source is a resolved member file.
	Source struct {
		Path     string
		Format   model.Format
		Template bool
	}
)

// DefaultRoots returns the conventional source locations under a project root:
// app/assets/<type> first, public/<type> as the alternate.
func DefaultRoots(projectRoot string) map[model.AssetType][]string {
	roots := make(map[model.AssetType][]string)
	for _, typ := range model.AssetTypes {
		roots[typ] = []string{
			filepath.Join(projectRoot, "app", "assets", typ.String()),
			filepath.Join(projectRoot, "public", typ.String()),
		}
	}
	return roots
}

func New(projectRoot string) *Resolver {
	return NewWithRoots(DefaultRoots(projectRoot))
}

func NewWithRoots(roots map[model.AssetType][]string) *Resolver {
	return &Resolver{roots: roots, stat: os.Stat}
}

// Root returns the directory searched for the given type. When no candidate
// exists the primary one is returned, so errors name the expected location.
func (r *Resolver) Root(typ model.AssetType) (string, error) {
	candidates := r.roots[typ]
	if len(candidates) == 0 {
		return "", model.UnknownTypeError{Type: typ.String()}
	}
	for _, dir := range candidates {
		if fi, err := r.stat(dir); err == nil && fi.IsDir() {
			return dir, nil
		}
	}
	return candidates[0], nil
}

// Resolve tries every format of the type in priority order, the plain file
// before its template variant, and returns the first existing file.
func (r *Resolver) Resolve(typ model.AssetType, member string) (Source, error) {
	if err := ValidateName(member); err != nil {
		return Source{}, err
	}
	root, err := r.Root(typ)
	if err != nil {
		return Source{}, err
	}

	base := filepath.Join(root, filepath.FromSlash(member))
	for _, format := range typ.Formats() {
		path := base + "." + string(format)
		if r.isFile(path) {
			return Source{Path: path, Format: format}, nil
		}
		if r.isFile(path + model.TemplateExt) {
			return Source{Path: path + model.TemplateExt, Format: format, Template: true}, nil
		}
	}
	return Source{}, NotFoundError{Type: typ, Name: member, Root: root, Formats: typ.Formats()}
}

func (r *Resolver) isFile(path string) bool {
	fi, err := r.stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// ValidateName rejects names that could escape the asset root. Sub-directories
// are allowed ("vendor/jquery"), absolute paths and ".." segments are not.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return InvalidNameError{Name: name, Reason: "empty name"}
	case strings.ContainsAny(name, "\\\x00"):
		return InvalidNameError{Name: name, Reason: "illegal character"}
	case strings.HasPrefix(name, "/") || filepath.IsAbs(name):
		return InvalidNameError{Name: name, Reason: "absolute path"}
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return InvalidNameError{Name: name, Reason: "path traversal"}
		}
	}
	return nil
}

type NotFoundError struct {
	Type    model.AssetType
	Name    string
	Root    string
	Formats []model.Format
}

func (e NotFoundError) Error() string {
	formats := make([]string, 0, len(e.Formats))
	for _, f := range e.Formats {
		formats = append(formats, string(f))
	}
	return fmt.Sprintf("couldn't find %s asset named '%s' in '%s' with one of these formats: %s (plain or %s)",
		e.Type, e.Name, e.Root, strings.Join(formats, ","), model.TemplateExt)
}

type InvalidNameError struct {
	Name   string
	Reason string
}

func (e InvalidNameError) Error() string {
	return fmt.Sprintf("invalid asset name '%s': %s", e.Name, e.Reason)
}
