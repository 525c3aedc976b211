package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/netdata/assets/manager/config"
	"github.com/netdata/assets/pipeline/asset"
	"github.com/netdata/assets/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type runSim struct {
	configs          []config.Config
	expectedGroup    []string // reference names of the "app" stylesheet group
	expectedSettings *[3]bool // combine, minify, cache
}

func (sim runSim) run(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &mockProvider{
		cfgs: sim.configs,
		ch:   make(chan []config.Config),
		sent: make(chan struct{}),
	}
	mgr := NewWithAssembler(Options{Env: "production"}, provider, nopAssembler{})

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	go func() { defer wg.Done(); mgr.Run(ctx) }()

	select {
	case <-provider.sent:
	case <-time.After(time.Second):
		t.Fatal("provider did not deliver configs")
	}
	time.Sleep(time.Millisecond * 100)

	c, err := mgr.Catalog()
	require.NoError(t, err)

	assert.Equal(t, sim.expectedGroup, names(c.ReferencesForGroup(model.Stylesheet, "app")))
	if sim.expectedSettings != nil {
		s := c.Settings()
		assert.Equal(t, *sim.expectedSettings, [3]bool{s.Combine, s.Minify, s.Cache})
	}

	cancel()
	wg.Wait()
}

type mockProvider struct {
	cfgs []config.Config
	ch   chan []config.Config
	sent chan struct{}
}

func (m *mockProvider) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
	case m.ch <- m.cfgs:
		close(m.sent)
	}
	<-ctx.Done()
}

func (m *mockProvider) Configs() chan []config.Config {
	return m.ch
}

type nopAssembler struct{ asset.Assembler }
