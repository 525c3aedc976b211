package render

import (
	"fmt"
	"strconv"
	"strings"
)

// contextLines is how many source lines are shown on each side of a failure.
const contextLines = 5

// TemplateError is a template failure enriched with the offending source lines.
type TemplateError struct {
	Path    string
	Line    int // 0 when the engine didn't report one
	Snippet []string
	Err     error
}

func (e *TemplateError) Error() string {
	var sb strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&sb, "template '%s' failed at line %d: %v", e.Path, e.Line, e.Err)
	} else {
		fmt.Fprintf(&sb, "template '%s' failed: %v", e.Path, e.Err)
	}
	for _, line := range e.Snippet {
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	return sb.String()
}

func (e *TemplateError) Unwrap() error { return e.Err }

type MissingContextError struct {
	Path string
}

func (e MissingContextError) Error() string {
	return fmt.Sprintf("template '%s' needs an execution context, got none", e.Path)
}

func newTemplateError(path, src string, err error) *TemplateError {
	line := errorLine(path, err)
	return &TemplateError{
		Path:    path,
		Line:    line,
		Snippet: Snippet(src, line),
		Err:     err,
	}
}

// errorLine extracts the line from text/template messages such as
// `template: <name>:7:12: executing "<name>" at <.Foo>: ...`.
func errorLine(name string, err error) int {
	msg := err.Error()
	prefix := "template: " + name + ":"
	i := strings.Index(msg, prefix)
	if i < 0 {
		return 0
	}
	digits := msg[i+len(prefix):]
	if end := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }); end >= 0 {
		digits = digits[:end]
	}
	n, _ := strconv.Atoi(digits)
	return n
}

// Snippet returns the source lines around line, the line itself marked with "=>".
func Snippet(src string, line int) []string {
	lines := strings.Split(src, "\n")
	if line < 1 || line > len(lines) {
		return nil
	}
	from, to := line-contextLines, line+contextLines
	if from < 1 {
		from = 1
	}
	if to > len(lines) {
		to = len(lines)
	}

	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		marker := "   "
		if i == line {
			marker = "=> "
		}
		out = append(out, fmt.Sprintf("%s%4d: %s", marker, i, lines[i-1]))
	}
	return out
}
