package server

import (
	"fmt"
	"hash/fnv"
	"html"
	"sort"
	"strings"

	"github.com/netdata/assets/pkg/model"
)

// Tags returns the markup linking every reference of a group: one <link> per
// stylesheet, one <script> per script. attrs are added to, or override, the
// default attributes. An unknown group yields no markup.
func (s *Server) Tags(typ model.AssetType, group string, data interface{}, attrs map[string]string) (string, error) {
	refs, err := s.catalog.ReferencesForGroup(typ, group)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, ref := range refs {
		p, err := s.AssetPath(ref, data)
		if err != nil {
			return "", err
		}
		url := s.assetURL(p)

		switch typ {
		case model.Stylesheet:
			sb.WriteString("<link")
			writeAttrs(&sb, merge(map[string]string{
				"type":  "text/css",
				"rel":   "stylesheet",
				"media": "screen",
				"href":  url,
			}, attrs))
			sb.WriteString(" />")
		case model.Script:
			sb.WriteString("<script")
			writeAttrs(&sb, merge(map[string]string{
				"type": "text/javascript",
				"src":  url,
			}, attrs))
			sb.WriteString("></script>")
		default:
			return "", model.UnknownTypeError{Type: typ.String()}
		}
	}
	return sb.String(), nil
}

func (s *Server) assetURL(p string) string {
	if s.host == "" {
		return p
	}
	if !strings.Contains(s.host, "%d") {
		return s.host + p
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(p))
	return fmt.Sprintf(s.host, h.Sum32()%4) + p
}

func merge(defaults, attrs map[string]string) map[string]string {
	for k, v := range attrs {
		defaults[k] = v
	}
	return defaults
}

func writeAttrs(sb *strings.Builder, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, ` %s="%s"`, html.EscapeString(k), html.EscapeString(attrs[k]))
	}
}
