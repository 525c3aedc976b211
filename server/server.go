package server

import (
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/netdata/assets/pipeline/asset"
	"github.com/netdata/assets/pipeline/resolve"
	"github.com/netdata/assets/pkg/log"
	"github.com/netdata/assets/pkg/model"

	"github.com/rs/zerolog"
)

const (
	DefaultPrefix = "/assets"
	maxAge        = 365 * 24 * time.Hour
)

type (
	Catalog interface {
		ReferencesForGroup(typ model.AssetType, key string) ([]*asset.Reference, error)
		ReferenceForName(typ model.AssetType, name string) (*asset.Reference, error)
		Cache() bool
	}
	// DataFunc returns the template execution context for a request.
	DataFunc func(r *http.Request) interface{}

	Options struct {
		Prefix string
		// AssetHost is prepended to tag urls, "%d" is replaced by a number
		// from 0 to 3 derived from the path.
		AssetHost string
		Data      DataFunc
	}

	// Server serves catalog references at
	// <prefix>/<type>[/<signature>]/<name>.<ext>.
	Server struct {
		catalog Catalog
		prefix  string
		host    string
		data    DataFunc
		now     func() time.Time
		log     zerolog.Logger
	}
)

func New(catalog Catalog, opts Options) *Server {
	prefix := "/" + strings.Trim(opts.Prefix, "/")
	if prefix == "/" {
		prefix = DefaultPrefix
	}
	data := opts.Data
	if data == nil {
		data = func(*http.Request) interface{} { return nil }
	}
	return &Server{
		catalog: catalog,
		prefix:  prefix,
		host:    strings.TrimRight(opts.AssetHost, "/"),
		data:    data,
		now:     time.Now,
		log:     log.New("server"),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	data := s.data(r)
	ref, signature, err := s.lookup(r.URL.Path, data)
	if err != nil {
		s.log.Error().Err(err).Msgf("lookup '%s'", r.URL.Path)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if ref == nil {
		http.NotFound(w, r)
		return
	}

	current, err := ref.Signature(data)
	if err != nil {
		s.fail(w, r, ref, err)
		return
	}
	if signature != "" && signature != current {
		http.NotFound(w, r)
		return
	}

	headers := w.Header()
	etag := `"` + current + `"`
	headers.Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	content, err := ref.Content(data)
	if err != nil {
		s.fail(w, r, ref, err)
		return
	}

	headers.Set("Content-Type", ref.Type().MimeType()+"; charset=utf-8")
	if signature != "" && s.catalog.Cache() {
		headers.Set("Cache-Control", "public, max-age=31536000")
		headers.Set("Expires", s.now().Add(maxAge).UTC().Format(http.TimeFormat))
	}
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(content))
}

// lookup parses the request path and finds the reference. Names may contain
// slashes, so "<sig>/<name>" is only tried when the whole rest is no name.
func (s *Server) lookup(urlPath string, data interface{}) (*asset.Reference, string, error) {
	clean := path.Clean(urlPath)
	if !strings.HasPrefix(clean, s.prefix+"/") {
		return nil, "", nil
	}
	rest := clean[len(s.prefix)+1:]

	typeSeg, rest, ok := strings.Cut(rest, "/")
	if !ok {
		return nil, "", nil
	}
	typ, err := model.ParseAssetType(typeSeg)
	if err != nil || typeSeg != typ.String() {
		return nil, "", nil
	}
	name := strings.TrimSuffix(rest, "."+typ.Ext())
	if name == rest || name == "" {
		return nil, "", nil
	}

	ref, err := s.catalog.ReferenceForName(typ, name)
	if err != nil || ref != nil {
		return ref, "", err
	}
	signature, name, ok := strings.Cut(name, "/")
	if !ok || name == "" {
		return nil, "", nil
	}
	ref, err = s.catalog.ReferenceForName(typ, name)
	return ref, signature, err
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, ref *asset.Reference, err error) {
	var notFound resolve.NotFoundError
	if errors.As(err, &notFound) {
		s.log.Warn().Err(err).Msgf("serve '%s'", ref)
		http.NotFound(w, r)
		return
	}
	s.log.Error().Err(err).Msgf("serve '%s'", ref)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// AssetPath returns the signed url path of a reference.
func (s *Server) AssetPath(ref *asset.Reference, data interface{}) (string, error) {
	signature, err := ref.Signature(data)
	if err != nil {
		return "", err
	}
	return AssetPath(s.prefix, ref.Type(), signature, ref.Name()), nil
}

// AssetPath joins the parts of an asset url path, signature may be empty.
func AssetPath(prefix string, typ model.AssetType, signature, name string) string {
	parts := []string{strings.TrimRight(prefix, "/"), typ.String()}
	if signature != "" {
		parts = append(parts, signature)
	}
	parts = append(parts, name+"."+typ.Ext())
	return strings.Join(parts, "/")
}
