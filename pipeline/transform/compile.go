package transform

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/netdata/assets/pipeline/render"
	"github.com/netdata/assets/pkg/model"

	"github.com/bep/golibsass/libsass"
)

// Compiler turns a stylesheet dialect into plain css. includeDir is the
// directory of the member, imports are looked up there.
type Compiler interface {
	Compile(src string, format model.Format, includeDir string) (string, error)
}

// SassCompiler compiles sass and scss through libsass.
type SassCompiler struct{}

func (SassCompiler) Compile(src string, format model.Format, includeDir string) (string, error) {
	if !format.Compiled() {
		return src, nil
	}
	tr, err := libsass.New(libsass.Options{
		IncludePaths: []string{includeDir},
		OutputStyle:  libsass.ExpandedStyle,
		SassSyntax:   format == model.FormatSass,
	})
	if err != nil {
		return "", err
	}
	res, err := tr.Execute(src)
	if err != nil {
		return "", err
	}
	return res.CSS, nil
}

type CompileError struct {
	Path    string
	Format  model.Format
	Line    int
	Snippet []string
	Err     error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("%s compilation of '%s' failed: %v", e.Format, e.Path, e.Err)
	for _, line := range e.Snippet {
		msg += "\n" + line
	}
	return msg
}

func (e *CompileError) Unwrap() error { return e.Err }

// libsass reports positions as "line 3:5 of stdin" or "line 3 of stdin".
var compileErrLine = regexp.MustCompile(`line (\d+)`)

func newCompileError(path string, format model.Format, src string, err error) *CompileError {
	e := &CompileError{Path: path, Format: format, Err: err}
	if m := compileErrLine.FindStringSubmatch(err.Error()); len(m) == 2 {
		e.Line, _ = strconv.Atoi(m[1])
		e.Snippet = render.Snippet(src, e.Line)
	}
	return e
}
