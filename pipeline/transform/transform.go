package transform

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/netdata/assets/pipeline/resolve"
	"github.com/netdata/assets/pkg/log"
	"github.com/netdata/assets/pkg/model"

	"github.com/rs/zerolog"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/parse/v2"
	cssparse "github.com/tdewolff/parse/v2/css"
)

// Transformer holds the type specific post-processing steps: dialect
// compilation and url rewriting per member, minification per combined asset.
type Transformer struct {
	compiler     Compiler
	minifier     *minify.M
	relativeRoot string
	log          zerolog.Logger
}

func New(relativeRoot string) *Transformer {
	return NewWithCompiler(SassCompiler{}, relativeRoot)
}

func NewWithCompiler(compiler Compiler, relativeRoot string) *Transformer {
	if relativeRoot == "" {
		relativeRoot = RelativeURLRoot
	}
	m := minify.New()
	m.AddFunc(model.Stylesheet.MimeType(), css.Minify)
	m.AddFunc(model.Script.MimeType(), js.Minify)

	return &Transformer{
		compiler:     compiler,
		minifier:     m,
		relativeRoot: relativeRoot,
		log:          log.New("transform"),
	}
}

// Compile turns a compiled-dialect member into css. Other formats pass through.
func (t *Transformer) Compile(src resolve.Source, text string) (string, error) {
	if !src.Format.Compiled() {
		return text, nil
	}
	out, err := t.compiler.Compile(text, src.Format, filepath.Dir(src.Path))
	if err != nil {
		return "", newCompileError(src.Path, src.Format, text, err)
	}
	return out, nil
}

// Rewrite rebases relative stylesheet urls onto the member. Scripts are
// returned unchanged.
func (t *Transformer) Rewrite(typ model.AssetType, member, text string) string {
	if typ != model.Stylesheet {
		return text
	}
	return RewriteURLs(text, member, t.relativeRoot)
}

func (t *Transformer) Minify(typ model.AssetType, text string) (string, error) {
	if !typ.Valid() {
		return "", model.UnknownTypeError{Type: typ.String()}
	}
	out, err := t.minifier.String(typ.MimeType(), text)
	if err != nil {
		return "", fmt.Errorf("minify %s: %v", typ, err)
	}
	out = stripLicenseComments(typ, out)
	t.log.Debug().Msgf("reduced %s size from %d to %d bytes", typ, len(text), len(out))
	return out, nil
}

// stripLicenseComments drops the /*! */ comments the minifier keeps. Stylesheet
// ones stay where they were declared, script ones are all written in front of
// the code.
func stripLicenseComments(typ model.AssetType, text string) string {
	if !strings.Contains(text, "/*!") && !strings.Contains(text, "//!") {
		return text
	}
	if typ == model.Stylesheet {
		var b strings.Builder
		l := cssparse.NewLexer(parse.NewInputString(text))
		for {
			tt, data := l.Next()
			switch tt {
			case cssparse.ErrorToken:
				return b.String()
			case cssparse.CommentToken:
			default:
				b.Write(data)
			}
		}
	}
	for {
		switch {
		case strings.HasPrefix(text, "/*!"):
			end := strings.Index(text, "*/")
			if end < 0 {
				return text
			}
			text = text[end+2:]
		case strings.HasPrefix(text, "//!"):
			end := strings.IndexByte(text, '\n')
			if end < 0 {
				return ""
			}
			text = text[end+1:]
		default:
			return text
		}
	}
}
