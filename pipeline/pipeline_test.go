package pipeline

import (
	"testing"

	"github.com/netdata/assets/pipeline/render"
	"github.com/netdata/assets/pipeline/resolve"
	"github.com/netdata/assets/pipeline/transform"
	"github.com/netdata/assets/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tmplData struct {
	Color string
}

func TestPipeline_Assemble(t *testing.T) {
	tests := map[string]func() assembleSim{
		"members are joined in order": func() assembleSim {
			return assembleSim{
				files: map[string]string{
					"app/assets/stylesheets/b.css": "b {}",
					"app/assets/stylesheets/a.css": "a {}",
				},
				typ:           model.Stylesheet,
				members:       []string{"b", "a"},
				expected:      "b {}\na {}",
				expectedReads: []string{"app/assets/stylesheets/b.css", "app/assets/stylesheets/a.css"},
			}
		},
		"single member": func() assembleSim {
			return assembleSim{
				files:    map[string]string{"app/assets/javascripts/app.js": "var a = 1;"},
				typ:      model.Script,
				members:  []string{"app"},
				expected: "var a = 1;",
			}
		},
		"urls are rebased per member": func() assembleSim {
			return assembleSim{
				files: map[string]string{
					"app/assets/stylesheets/one.css":    "a { background: url(x.png) }",
					"app/assets/stylesheets/ui/two.css": "b { background: url(../y.png) }",
				},
				typ:      model.Stylesheet,
				members:  []string{"one", "ui/two"},
				expected: "a { background: url(/stylesheets/one/x.png) }\nb { background: url(/stylesheets/ui/two/y.png) }",
			}
		},
		"signature input is not rebased": func() assembleSim {
			return assembleSim{
				files:        map[string]string{"app/assets/stylesheets/one.css": "a { background: url(x.png) }"},
				typ:          model.Stylesheet,
				members:      []string{"one"},
				forSignature: true,
				expected:     "a { background: url(x.png) }",
			}
		},
		"dialects are compiled for both variants": func() assembleSim {
			return assembleSim{
				files:        map[string]string{"app/assets/stylesheets/one.scss": "a { b: c }"},
				typ:          model.Stylesheet,
				members:      []string{"one"},
				forSignature: true,
				expected:     "/* scss */ a { b: c }",
			}
		},
		"templates are rendered with the context": func() assembleSim {
			return assembleSim{
				files: map[string]string{
					"app/assets/stylesheets/theme.css.tmpl": "a { color: {{ .Color }} }",
				},
				typ:      model.Stylesheet,
				members:  []string{"theme"},
				data:     tmplData{Color: "red"},
				expected: "a { color: red }",
			}
		},
		"templates are rendered for the signature": func() assembleSim {
			return assembleSim{
				files: map[string]string{
					"app/assets/javascripts/cfg.js.tmpl": "var color = '{{ .Color }}';",
				},
				typ:          model.Script,
				members:      []string{"cfg"},
				data:         tmplData{Color: "blue"},
				forSignature: true,
				expected:     "var color = 'blue';",
			}
		},
		"templated dialect is rendered then compiled": func() assembleSim {
			return assembleSim{
				files: map[string]string{
					"app/assets/stylesheets/theme.sass.tmpl": "a\n  color: {{ .Color }}",
				},
				typ:      model.Stylesheet,
				members:  []string{"theme"},
				data:     tmplData{Color: "red"},
				expected: "/* sass */ a\n  color: red",
			}
		},
		"missing member fails the whole asset": func() assembleSim {
			return assembleSim{
				files:   map[string]string{"app/assets/stylesheets/a.css": "a {}"},
				typ:     model.Stylesheet,
				members: []string{"a", "missing"},
				wantErr: &resolve.NotFoundError{},
			}
		},
		"template without context": func() assembleSim {
			return assembleSim{
				files:   map[string]string{"app/assets/stylesheets/t.css.tmpl": "{{ .Color }}"},
				typ:     model.Stylesheet,
				members: []string{"t"},
				wantErr: &render.MissingContextError{},
			}
		},
		"broken template": func() assembleSim {
			return assembleSim{
				files:   map[string]string{"app/assets/stylesheets/t.css.tmpl": "{{ .Color "},
				typ:     model.Stylesheet,
				members: []string{"t"},
				data:    tmplData{},
				wantErr: new(*render.TemplateError),
			}
		},
		"compile failure": func() assembleSim {
			return assembleSim{
				files:   map[string]string{"app/assets/stylesheets/bad.scss": "@error"},
				typ:     model.Stylesheet,
				members: []string{"bad"},
				wantErr: new(*transform.CompileError),
			}
		},
		"unknown type": func() assembleSim {
			return assembleSim{
				typ:     model.AssetType(7),
				members: []string{"a"},
				wantErr: &model.UnknownTypeError{},
			}
		},
	}

	for name, createSim := range tests {
		t.Run(name, func(t *testing.T) { createSim().run(t) })
	}
}

func TestPipeline_Sources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root+"/public/javascripts/a.js", "a")
	writeFile(t, root+"/public/javascripts/b.js.tmpl", "b")

	p := New(resolve.New(root), render.New(), transform.NewWithCompiler(mockCompiler{}, ""))

	sources, err := p.Sources(model.Script, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []resolve.Source{
		{Path: root + "/public/javascripts/a.js", Format: model.FormatJS},
		{Path: root + "/public/javascripts/b.js.tmpl", Format: model.FormatJS, Template: true},
	}, sources)

	_, err = p.Sources(model.Script, []string{"a", "c"})
	assert.Error(t, err)
}
