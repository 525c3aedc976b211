package file

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/netdata/assets/manager/config"
	"github.com/netdata/assets/pkg/log"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Provider watches an assets document on disk and sends its content every
// time it changes, and an empty config when it is removed.
type Provider struct {
	path         string
	watcher      *fsnotify.Watcher
	modTime      time.Time
	seen         bool
	refreshEvery time.Duration
	configCh     chan []config.Config
	log          zerolog.Logger
}

func NewProvider(path string) *Provider {
	return &Provider{
		path:         filepath.Clean(path),
		refreshEvery: time.Second * 10,
		configCh:     make(chan []config.Config),
		log:          log.New("file config provider"),
	}
}

func (p *Provider) Configs() chan []config.Config {
	return p.configCh
}

func (p *Provider) Run(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.log.Error().Err(err).Msg("create watcher")
		return
	}

	p.log.Info().Msgf("instance is started, watching '%s'", p.path)
	defer p.log.Info().Msg("instance is stopped")

	p.watcher = watcher
	defer p.stop()
	p.refresh(ctx)

	tk := time.NewTicker(p.refreshEvery)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			p.refresh(ctx)
		case event := <-p.watcher.Events:
			if event.Name == "" || isChmod(event) || filepath.Clean(event.Name) != p.path {
				break
			}
			if isRename(event) {
				// Editors often save by renaming the old file and writing a new one,
				// give the new file a moment to appear.
				time.Sleep(time.Millisecond * 100)
			}
			p.refresh(ctx)
		case err := <-p.watcher.Errors:
			if err != nil {
				p.log.Warn().Err(err).Msg("watch")
			}
		}
	}
}

func (p *Provider) refresh(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	default:
	}
	defer p.watchDir()

	fi, err := os.Stat(p.path)
	if err != nil || !fi.Mode().IsRegular() {
		if p.seen {
			p.seen = false
			p.modTime = time.Time{}
			p.send(ctx, config.Config{Source: p.path})
		}
		return
	}

	if p.seen && p.modTime.Equal(fi.ModTime()) {
		return
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		p.log.Warn().Err(err).Msgf("read '%s'", p.path)
		return
	}
	if data == nil {
		data = []byte{}
	}

	p.seen = true
	p.modTime = fi.ModTime()
	p.send(ctx, config.Config{Source: p.path, Data: data})
}

func (p *Provider) watchDir() {
	if err := p.watcher.Add(filepath.Dir(p.path)); err != nil {
		p.log.Debug().Err(err).Msgf("watch '%s'", filepath.Dir(p.path))
	}
}

func (p *Provider) stop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// closing the watcher deadlocks unless all events and errors are drained.
	go func() {
		for {
			select {
			case <-p.watcher.Errors:
			case <-p.watcher.Events:
			case <-ctx.Done():
				return
			}
		}
	}()

	_ = p.watcher.Close()
}

func (p *Provider) send(ctx context.Context, cfg config.Config) {
	select {
	case <-ctx.Done():
	case p.configCh <- []config.Config{cfg}:
	}
}

func isChmod(event fsnotify.Event) bool {
	return event.Op^fsnotify.Chmod == 0
}

func isRename(event fsnotify.Event) bool {
	return event.Op&fsnotify.Rename == fsnotify.Rename
}
