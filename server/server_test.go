package server

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/netdata/assets/manager"
	"github.com/netdata/assets/pipeline/asset"
	"github.com/netdata/assets/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const document = `
stylesheets:
  - base: [reset, ui/layout]
javascripts:
  - app: [app]
  - broken: [missing]
config:
  test:
    minify: false
  nocache:
    minify: false
    cache: false
  expanded:
    minify: false
    combine_asset_groups: false
`

var files = map[string]string{
	"app/assets/stylesheets/reset.css":     "* { margin: 0 }",
	"app/assets/stylesheets/ui/layout.css": "body { background: url(bg.png) }",
	"app/assets/javascripts/app.js.tmpl":   "var user = '{{ .User }}';",
}

type requestData struct{ User string }

func prepareServer(t *testing.T, env string, opts Options) (*Server, *manager.Manager) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	mgr := manager.New(manager.Options{Root: root, Env: env}, nil)
	require.NoError(t, mgr.Reload([]byte(document)))

	if opts.Data == nil {
		opts.Data = func(*http.Request) interface{} { return requestData{User: "bob"} }
	}
	srv := New(mgr, opts)
	srv.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return srv, mgr
}

func signatureOf(t *testing.T, mgr *manager.Manager, typ model.AssetType, name string) string {
	t.Helper()
	ref, err := mgr.ReferenceForName(typ, name)
	require.NoError(t, err)
	require.NotNil(t, ref)
	sig, err := ref.Signature(requestData{User: "bob"})
	require.NoError(t, err)
	return sig
}

func TestServer_ServeHTTP(t *testing.T) {
	srv, mgr := prepareServer(t, "test", Options{})
	cssSig := signatureOf(t, mgr, model.Stylesheet, "base")

	tests := map[string]struct {
		method        string
		path          string
		header        map[string]string
		expectedCode  int
		expectedBody  string
		expectedCache bool
	}{
		"combined stylesheet": {
			path:         "/assets/stylesheets/base.css",
			expectedCode: http.StatusOK,
			expectedBody: "* { margin: 0 }\nbody { background: url(/stylesheets/ui/layout/bg.png) }",
		},
		"signed stylesheet": {
			path:          "/assets/stylesheets/" + cssSig + "/base.css",
			expectedCode:  http.StatusOK,
			expectedBody:  "* { margin: 0 }\nbody { background: url(/stylesheets/ui/layout/bg.png) }",
			expectedCache: true,
		},
		"templated script": {
			path:         "/assets/javascripts/app.js",
			expectedCode: http.StatusOK,
			expectedBody: "var user = 'bob';",
		},
		"head request": {
			method:       http.MethodHead,
			path:         "/assets/javascripts/app.js",
			expectedCode: http.StatusOK,
		},
		"stale signature": {
			path:         "/assets/stylesheets/0123456789abcdef0123456789abcdef/base.css",
			expectedCode: http.StatusNotFound,
		},
		"member of a combined group": {
			path:         "/assets/stylesheets/reset.css",
			expectedCode: http.StatusNotFound,
		},
		"unknown name": {
			path:         "/assets/javascripts/nope.js",
			expectedCode: http.StatusNotFound,
		},
		"unknown type": {
			path:         "/assets/images/base.png",
			expectedCode: http.StatusNotFound,
		},
		"wrong extension": {
			path:         "/assets/stylesheets/base.js",
			expectedCode: http.StatusNotFound,
		},
		"outside the prefix": {
			path:         "/static/stylesheets/base.css",
			expectedCode: http.StatusNotFound,
		},
		"missing member file": {
			path:         "/assets/javascripts/broken.js",
			expectedCode: http.StatusNotFound,
		},
		"not modified": {
			path:         "/assets/stylesheets/base.css",
			header:       map[string]string{"If-None-Match": `"` + cssSig + `"`},
			expectedCode: http.StatusNotModified,
		},
		"post": {
			method:       http.MethodPost,
			path:         "/assets/stylesheets/base.css",
			expectedCode: http.StatusMethodNotAllowed,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			method := test.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, test.path, nil)
			for k, v := range test.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			assert.Equal(t, test.expectedCode, rec.Code)
			if test.expectedCode != http.StatusOK {
				return
			}
			assert.Equal(t, test.expectedBody, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("ETag"))
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/"))
			if test.expectedCache {
				assert.Equal(t, "public, max-age=31536000", rec.Header().Get("Cache-Control"))
				assert.Equal(t, "Fri, 01 Jan 2027 00:00:00 GMT", rec.Header().Get("Expires"))
			} else {
				assert.Empty(t, rec.Header().Get("Cache-Control"))
				assert.Empty(t, rec.Header().Get("Expires"))
			}
		})
	}
}

func TestServer_ServeHTTP_CacheDisabled(t *testing.T) {
	srv, mgr := prepareServer(t, "nocache", Options{Prefix: "/static/"})
	sig := signatureOf(t, mgr, model.Stylesheet, "base")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/stylesheets/"+sig+"/base.css", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestServer_ServeHTTP_NestedName(t *testing.T) {
	srv, mgr := prepareServer(t, "expanded", Options{})
	sig := signatureOf(t, mgr, model.Stylesheet, "ui/layout")

	for _, p := range []string{"/assets/stylesheets/ui/layout.css", "/assets/stylesheets/" + sig + "/ui/layout.css"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))

		assert.Equalf(t, http.StatusOK, rec.Code, "GET %s", p)
		assert.Equal(t, "body { background: url(/stylesheets/ui/layout/bg.png) }", rec.Body.String())
	}
}

func TestServer_Tags(t *testing.T) {
	tests := map[string]struct {
		env      string
		opts     Options
		typ      model.AssetType
		group    string
		attrs    map[string]string
		expected func(sig func(model.AssetType, string) string) string
	}{
		"stylesheet group": {
			env:   "test",
			typ:   model.Stylesheet,
			group: "base",
			expected: func(sig func(model.AssetType, string) string) string {
				return `<link href="/assets/stylesheets/` + sig(model.Stylesheet, "base") +
					`/base.css" media="screen" rel="stylesheet" type="text/css" />`
			},
		},
		"expanded stylesheet group with attributes": {
			env:   "expanded",
			typ:   model.Stylesheet,
			group: "base",
			attrs: map[string]string{"media": "print"},
			expected: func(sig func(model.AssetType, string) string) string {
				return `<link href="/assets/stylesheets/` + sig(model.Stylesheet, "reset") +
					`/reset.css" media="print" rel="stylesheet" type="text/css" />` +
					`<link href="/assets/stylesheets/` + sig(model.Stylesheet, "ui/layout") +
					`/ui/layout.css" media="print" rel="stylesheet" type="text/css" />`
			},
		},
		"script with asset host": {
			env:   "test",
			opts:  Options{AssetHost: "https://cdn.example.com/"},
			typ:   model.Script,
			group: "app",
			expected: func(sig func(model.AssetType, string) string) string {
				return `<script src="https://cdn.example.com/assets/javascripts/` + sig(model.Script, "app") +
					`/app.js" type="text/javascript"></script>`
			},
		},
		"unknown group": {
			env:      "test",
			typ:      model.Script,
			group:    "nope",
			expected: func(func(model.AssetType, string) string) string { return "" },
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			srv, mgr := prepareServer(t, test.env, test.opts)
			sig := func(typ model.AssetType, name string) string { return signatureOf(t, mgr, typ, name) }

			out, err := srv.Tags(test.typ, test.group, requestData{User: "bob"}, test.attrs)

			require.NoError(t, err)
			assert.Equal(t, test.expected(sig), out)
		})
	}
}

func TestServer_assetURL(t *testing.T) {
	srv := New(nil, Options{AssetHost: "https://a%d.example.com"})

	url := srv.assetURL("/assets/javascripts/app.js")
	assert.Regexp(t, `^https://a[0-3]\.example\.com/assets/javascripts/app\.js$`, url)
	assert.Equal(t, url, srv.assetURL("/assets/javascripts/app.js"))
}

func TestAssetPath(t *testing.T) {
	assert.Equal(t, "/assets/stylesheets/abc/base.css", AssetPath("/assets/", model.Stylesheet, "abc", "base"))
	assert.Equal(t, "/assets/javascripts/vendor/jquery.js", AssetPath("/assets", model.Script, "", "vendor/jquery"))
}

func TestCompile(t *testing.T) {
	_, mgr := prepareServer(t, "test", Options{})
	c, err := mgr.Catalog()
	require.NoError(t, err)

	var refs []*asset.Reference
	for _, ref := range c.References() {
		if ref.Name() != "broken" {
			refs = append(refs, ref)
		}
	}
	dest := t.TempDir()
	data := requestData{User: "bob"}

	require.NoError(t, Compile(context.Background(), refs, dest, data))

	for _, ref := range refs {
		content, err := ref.Content(data)
		require.NoError(t, err)
		sig, err := ref.Signature(data)
		require.NoError(t, err)

		for _, sigDir := range []string{"", sig} {
			name := filepath.Join(dest, ref.Type().String(), sigDir, ref.Name()+"."+ref.Type().Ext())

			bs, err := os.ReadFile(name)
			require.NoError(t, err)
			assert.Equal(t, content, string(bs))

			f, err := os.Open(name + ".gz")
			require.NoError(t, err)
			zr, err := gzip.NewReader(f)
			require.NoError(t, err)
			unzipped, err := io.ReadAll(zr)
			_ = f.Close()
			require.NoError(t, err)
			assert.Equal(t, content, string(unzipped))
		}
	}
}

func TestCompile_Error(t *testing.T) {
	_, mgr := prepareServer(t, "test", Options{})
	ref, err := mgr.ReferenceForName(model.Script, "broken")
	require.NoError(t, err)
	require.NotNil(t, ref)

	assert.Error(t, Compile(context.Background(), []*asset.Reference{ref}, t.TempDir(), nil))
}
