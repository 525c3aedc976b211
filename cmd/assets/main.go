package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/netdata/assets/manager"
	"github.com/netdata/assets/manager/catalog"
	"github.com/netdata/assets/manager/config/provider/file"
	"github.com/netdata/assets/manager/config/provider/kubernetes"
	"github.com/netdata/assets/pipeline/asset"
	"github.com/netdata/assets/pkg/log"
	"github.com/netdata/assets/pkg/model"
	"github.com/netdata/assets/server"

	"github.com/gobwas/glob"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"
)

type options struct {
	ConfigFile   string `long:"config-file" description:"Assets document path (default: <root>/config/assets.yml)"`
	ConfigMap    string `long:"config-map" description:"Assets document ConfigMap ([namespace/]name:key)"`
	Root         string `long:"root" default:"." description:"Project root holding app/assets and public"`
	Env          string `long:"env" description:"Environment selecting the config section (default: development)"`
	VersionToken string `long:"version-token" description:"Token prepended to every signature"`
	Watch        bool   `long:"watch" description:"Reload the catalog when the assets document changes"`
	Listen       string `long:"listen" description:"Serve assets on this address"`
	Prefix       string `long:"prefix" default:"/assets" description:"URL path prefix of served assets"`
	AssetHost    string `long:"asset-host" description:"Host prepended to asset urls in tags, %d picks one of four"`
	Compile      string `long:"compile" description:"Write every asset below this directory and exit"`
	Only         string `long:"only" description:"Compile only <type>/<name> matching this glob"`
	Debug        bool   `short:"d" long:"debug" description:"Debug mode"`
}

// templateData is the execution context of templated members.
type templateData struct {
	Env          string
	VersionToken string
}

var logger = log.New("main")

func main() {
	opts := parseCLI()
	applyFromEnv(&opts)

	if err := validateOptions(opts); err != nil {
		logger.Fatal().Err(err).Msg("failed to validate cli options")
	}

	if opts.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	provider, err := newConfigProvider(opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create config provider")
	}

	mgr := manager.New(manager.Options{
		ConfigFile:   opts.ConfigFile,
		Root:         opts.Root,
		Env:          opts.Env,
		VersionToken: opts.VersionToken,
	}, provider)
	data := templateData{Env: opts.Env, VersionToken: opts.VersionToken}

	if opts.Compile != "" {
		if err := compile(mgr, opts, data); err != nil {
			logger.Fatal().Err(err).Msg("failed to compile assets")
		}
		return
	}

	var srv *http.Server
	if opts.Listen != "" {
		srv = &http.Server{
			Addr: opts.Listen,
			Handler: server.New(mgr, server.Options{
				Prefix:    opts.Prefix,
				AssetHost: opts.AssetHost,
				Data:      func(*http.Request) interface{} { return data },
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	run(mgr, srv)
}

func run(mgr *manager.Manager, srv *http.Server) {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	go func() { defer wg.Done(); mgr.Run(ctx) }()

	if srv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Msgf("serving assets on '%s'", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server")
			}
		}()
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-ch
	logger.Info().Msgf("received %s signal (%d). Terminating...", sig, sig)
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	cancel()
	wg.Wait()
}

func compile(mgr *manager.Manager, opts options, data templateData) error {
	c, err := mgr.Catalog()
	if err != nil {
		return err
	}
	for _, line := range describeGroups(c) {
		logger.Debug().Msg(line)
	}
	refs, err := filterReferences(c.References(), opts.Only)
	if err != nil {
		return err
	}
	logger.Info().Msgf("compiling %d assets to '%s'", len(refs), opts.Compile)
	return server.Compile(context.Background(), refs, opts.Compile, data)
}

// describeGroups lists every group of the catalog with the source files of
// its references.
func describeGroups(c *catalog.Catalog) []string {
	var lines []string
	for _, typ := range model.AssetTypes {
		for _, key := range c.GroupKeys(typ) {
			var refs []string
			for _, ref := range c.ReferencesForGroup(typ, key) {
				paths, err := ref.Paths()
				if err != nil {
					refs = append(refs, fmt.Sprintf("%s (%v)", ref.Name(), err))
					continue
				}
				refs = append(refs, fmt.Sprintf("%s [%s]", ref.Name(), strings.Join(paths, ", ")))
			}
			lines = append(lines, fmt.Sprintf("%s/%s: %s", typ, key, strings.Join(refs, "; ")))
		}
	}
	return lines
}

func filterReferences(refs []*asset.Reference, pattern string) ([]*asset.Reference, error) {
	if pattern == "" {
		return refs, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}
	var matched []*asset.Reference
	for _, ref := range refs {
		if g.Match(ref.String()) {
			matched = append(matched, ref)
		}
	}
	return matched, nil
}

func parseCLI() options {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Name = "assets"
	parser.Usage = "[OPTION]..."

	if _, err := parser.ParseArgs(os.Args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		} else {
			os.Exit(1)
		}
	}
	return opts
}

func applyFromEnv(opts *options) {
	if v, ok := os.LookupEnv("ASSETS_CONFIG_FILE"); ok && opts.ConfigFile == "" {
		opts.ConfigFile = v
	}
	if v, ok := os.LookupEnv("ASSETS_CONFIG_MAP"); ok && opts.ConfigMap == "" {
		opts.ConfigMap = v
	}
	if v, ok := os.LookupEnv("ASSETS_ENV"); ok && opts.Env == "" {
		opts.Env = v
	}
	if opts.Env == "" {
		opts.Env = "development"
	}
	if v, ok := os.LookupEnv("ASSETS_VERSION"); ok && opts.VersionToken == "" {
		opts.VersionToken = v
	}
	if opts.ConfigFile == "" {
		opts.ConfigFile = filepath.Join(opts.Root, "config", "assets.yml")
	}
}

func validateOptions(opts options) error {
	if opts.Watch && opts.ConfigMap != "" {
		return errors.New("--watch and --config-map are mutually exclusive")
	}
	if opts.Compile != "" && opts.Listen != "" {
		return errors.New("--compile and --listen are mutually exclusive")
	}
	if opts.Only != "" && opts.Compile == "" {
		return errors.New("--only requires --compile")
	}
	return nil
}

func newConfigProvider(opts options) (manager.ConfigProvider, error) {
	switch {
	case opts.ConfigMap != "":
		cfg, err := kubernetes.ParseConfig(opts.ConfigMap)
		if err != nil {
			return nil, err
		}
		if cfg.Namespace == "" {
			cfg.Namespace = os.Getenv("MY_POD_NAMESPACE")
		}
		return kubernetes.NewProvider(cfg)
	case opts.Watch:
		return file.NewProvider(opts.ConfigFile), nil
	}
	return nil, nil
}
