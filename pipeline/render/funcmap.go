package render

import (
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/gobwas/glob"
)

var funcMap = func() template.FuncMap {
	fm := sprig.TxtFuncMap()
	// glob value pattern [pattern...] reports whether any pattern matches.
	fm["glob"] = globAny
	return fm
}()

func globAny(value, pattern string, rest ...string) bool {
	switch len(rest) {
	case 0:
		return globOnce(value, pattern)
	default:
		return globOnce(value, pattern) || globAny(value, rest[0], rest[1:]...)
	}
}

func globOnce(value, pattern string) bool {
	g, _ := globStore(pattern)
	return g != nil && g.Match(value)
}

var globStore = func() func(pattern string) (glob.Glob, error) {
	var l sync.Mutex
	store := make(map[string]struct {
		g   glob.Glob
		err error
	})

	return func(pattern string) (glob.Glob, error) {
		if pattern == "" {
			return nil, nil
		}
		l.Lock()
		defer l.Unlock()
		r, ok := store[pattern]
		if !ok {
			r.g, r.err = glob.Compile(pattern, '/')
			store[pattern] = r
		}
		return r.g, r.err
	}
}()
