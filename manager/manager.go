package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/netdata/assets/manager/catalog"
	"github.com/netdata/assets/manager/config"
	"github.com/netdata/assets/pipeline"
	"github.com/netdata/assets/pipeline/asset"
	"github.com/netdata/assets/pkg/log"
	"github.com/netdata/assets/pkg/model"

	"github.com/rs/zerolog"
)

type (
	// Manager owns the process wide catalog. It is built from the assets
	// document on first access and replaced only by Reset, Reload or a
	// provider update.
	Manager struct {
		opts Options
		prov ConfigProvider
		pipe asset.Assembler

		catalog atomic.Pointer[catalog.Catalog]
		hash    atomic.Uint64

		readFile func(string) ([]byte, error)
		log      zerolog.Logger
	}
	Options struct {
		ConfigFile      string
		Root            string
		Env             string
		VersionToken    string
		RelativeURLRoot string
	}
	ConfigProvider interface {
		Run(ctx context.Context)
		Configs() chan []config.Config
	}
)

// New creates a manager. provider may be nil when the catalog is never
// reloaded from outside.
func New(opts Options, provider ConfigProvider) *Manager {
	return NewWithAssembler(opts, provider, pipeline.NewDefault(opts.Root, opts.RelativeURLRoot))
}

func NewWithAssembler(opts Options, provider ConfigProvider, pipe asset.Assembler) *Manager {
	return &Manager{
		opts:     opts,
		prov:     provider,
		pipe:     pipe,
		readFile: os.ReadFile,
		log:      log.New("manager"),
	}
}

// Catalog returns the current catalog, building it from the config file when
// there is none yet. Concurrent first callers may all build, only one result
// is published.
func (m *Manager) Catalog() (*catalog.Catalog, error) {
	for {
		if c := m.catalog.Load(); c != nil {
			return c, nil
		}
		c, err := m.load()
		if err != nil {
			return nil, err
		}
		if m.catalog.CompareAndSwap(nil, c) {
			m.logBuilt(c, m.opts.ConfigFile)
			return c, nil
		}
	}
}

func (m *Manager) load() (*catalog.Catalog, error) {
	if m.opts.ConfigFile == "" {
		return catalog.Empty(), nil
	}
	data, err := m.readFile(m.opts.ConfigFile)
	if errors.Is(err, os.ErrNotExist) {
		m.log.Warn().Msgf("assets file '%s' not found, using an empty catalog", m.opts.ConfigFile)
		return catalog.Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	spec, err := catalog.Parse(data, m.opts.Env)
	if err != nil {
		return nil, fmt.Errorf("parse '%s': %w", m.opts.ConfigFile, err)
	}
	return m.build(spec), nil
}

func (m *Manager) build(spec catalog.Spec) *catalog.Catalog {
	return catalog.Build(spec, m.pipe, m.opts.VersionToken)
}

// Reset drops the catalog, the next access builds it again.
func (m *Manager) Reset() {
	m.catalog.Store(nil)
}

// Reload replaces the catalog with one built from data. On error the
// current catalog is kept.
func (m *Manager) Reload(data []byte) error {
	spec, err := catalog.Parse(data, m.opts.Env)
	if err != nil {
		return err
	}
	c := m.build(spec)
	m.hash.Store(spec.Hash())
	m.catalog.Store(c)
	m.logBuilt(c, "reload")
	return nil
}

func (m *Manager) ReferencesForGroup(typ model.AssetType, key string) ([]*asset.Reference, error) {
	c, err := m.Catalog()
	if err != nil {
		return nil, err
	}
	return c.ReferencesForGroup(typ, key), nil
}

// ReferenceForName returns a nil reference when the name is not in the catalog.
func (m *Manager) ReferenceForName(typ model.AssetType, name string) (*asset.Reference, error) {
	c, err := m.Catalog()
	if err != nil {
		return nil, err
	}
	ref, _ := c.ReferenceForName(typ, name)
	return ref, nil
}

// Cache reports whether served assets may carry far future cache headers.
// A catalog that fails to load disables caching.
func (m *Manager) Cache() bool {
	c, err := m.Catalog()
	return err == nil && c.Settings().Cache
}

func (m *Manager) Run(ctx context.Context) {
	m.log.Info().Msg("instance is started")
	defer m.log.Info().Msg("instance is stopped")

	if m.prov == nil {
		<-ctx.Done()
		return
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() { defer wg.Done(); m.prov.Run(ctx) }()

	wg.Add(1)
	go func() { defer wg.Done(); m.run(ctx) }()

	wg.Wait()
	<-ctx.Done()
}

func (m *Manager) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfgs := <-m.prov.Configs():
			for _, cfg := range cfgs {
				select {
				case <-ctx.Done():
					return
				default:
					m.process(cfg)
				}
			}
		}
	}
}

func (m *Manager) process(cfg config.Config) {
	if cfg.Source == "" {
		return
	}

	if cfg.Removed() {
		m.log.Info().Msgf("assets source '%s' removed, using an empty catalog", cfg.Source)
		m.hash.Store(0)
		m.catalog.Store(catalog.Empty())
		return
	}

	spec, err := catalog.Parse(cfg.Data, m.opts.Env)
	if err != nil {
		m.log.Error().Err(err).Msgf("invalid assets document from '%s', keeping the current catalog", cfg.Source)
		return
	}

	if hash := spec.Hash(); hash != m.hash.Load() || m.catalog.Load() == nil {
		m.hash.Store(hash)
		c := m.build(spec)
		m.catalog.Store(c)
		m.logBuilt(c, cfg.Source)
	}
}

func (m *Manager) logBuilt(c *catalog.Catalog, source string) {
	m.log.Info().Msgf("catalog built from '%s': %d references, combine=%v minify=%v cache=%v",
		source, len(c.References()), c.Settings().Combine, c.Settings().Minify, c.Settings().Cache)
}
