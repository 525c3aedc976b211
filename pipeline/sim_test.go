package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/netdata/assets/pipeline/render"
	"github.com/netdata/assets/pipeline/resolve"
	"github.com/netdata/assets/pipeline/transform"
	"github.com/netdata/assets/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type assembleSim struct {
	files        map[string]string // path relative to the project root: content
	typ          model.AssetType
	members      []string
	data         interface{}
	forSignature bool

	expected      string
	expectedReads []string
	wantErr       interface{}
}

func (sim assembleSim) run(t *testing.T) {
	root := t.TempDir()
	for name, content := range sim.files {
		writeFile(t, filepath.Join(root, name), content)
	}

	p := New(resolve.New(root), render.New(), transform.NewWithCompiler(mockCompiler{}, ""))
	var reads []string
	p.readFile = func(path string) ([]byte, error) {
		rel, _ := filepath.Rel(root, path)
		reads = append(reads, filepath.ToSlash(rel))
		return os.ReadFile(path)
	}

	out, err := p.Assemble(sim.typ, sim.members, sim.data, sim.forSignature)

	if sim.wantErr != nil {
		require.Error(t, err)
		assert.Truef(t, errors.As(err, sim.wantErr), "unexpected error type: %T", err)
		return
	}
	require.NoError(t, err)
	assert.Equal(t, sim.expected, out)
	if sim.expectedReads != nil {
		assert.Equal(t, sim.expectedReads, reads)
	}
}

// mockCompiler marks compiled output so tests can tell it went through the compiler.
type mockCompiler struct{}

func (mockCompiler) Compile(src string, format model.Format, _ string) (string, error) {
	if strings.Contains(src, "@error") {
		return "", errors.New("Error: forced on line 1 of stdin")
	}
	return "/* " + string(format) + " */ " + src, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
