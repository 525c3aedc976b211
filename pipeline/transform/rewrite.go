package transform

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// RelativeURLRoot is where static files referenced by stylesheets are served
// from. A relative url inside member "fancy" resolves under <root>/fancy/.
const RelativeURLRoot = "/stylesheets"

var urlScheme = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

// RewriteURLs rebases the relative url(...) references of a member's css onto
// <root>/<member>/, so they keep working when the combined stylesheet is served
// from a different path: url(../img/x.png) in member "fancy" becomes
// url(/stylesheets/fancy/img/x.png). Absolute paths, scheme urls (http:, cid:,
// data:) and fragment references are left untouched. Quotes are preserved.
func RewriteURLs(text, member, root string) string {
	prefix := strings.TrimRight(root, "/") + "/" + strings.Trim(member, "/") + "/"

	var b strings.Builder
	b.Grow(len(text))

	l := css.NewLexer(parse.NewInputString(text))
	for {
		tt, data := l.Next()
		switch tt {
		case css.ErrorToken:
			return b.String()
		case css.URLToken:
			b.WriteString(rewriteURLToken(data, prefix))
		default:
			b.Write(data)
		}
	}
}

// rewriteURLToken takes a whole url(...) token, the function name in any case
// and the argument optionally quoted.
func rewriteURLToken(token []byte, prefix string) string {
	open := bytes.IndexByte(token, '(')
	if open < 0 || token[len(token)-1] != ')' {
		return string(token)
	}
	name := string(token[:open])
	quote, url := unquote(strings.TrimSpace(string(token[open+1 : len(token)-1])))
	if !isRelativeURL(url) {
		return string(token)
	}
	if url = stripDotSegments(url); url == "" {
		return string(token)
	}
	return name + "(" + quote + prefix + url + quote + ")"
}

func unquote(s string) (quote, url string) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[:1], strings.TrimSpace(s[1 : len(s)-1])
	}
	return "", s
}

func isRelativeURL(url string) bool {
	switch {
	case url == "":
		return false
	case strings.HasPrefix(url, "/"):
		return false
	case strings.HasPrefix(url, "#"):
		return false
	case urlScheme.MatchString(url):
		return false
	}
	return true
}

func stripDotSegments(url string) string {
	for {
		switch {
		case strings.HasPrefix(url, "./"):
			url = url[2:]
		case strings.HasPrefix(url, "../"):
			url = url[3:]
		default:
			return url
		}
	}
}
