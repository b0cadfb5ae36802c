// Package app builds and runs the pkghub processes: the bridge and the
// per-ecosystem adapters. Everything is wired explicitly from the loaded
// configuration; no globals beyond the logger.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"pkghub/internal/adapter"
	"pkghub/internal/adapter/maven"
	"pkghub/internal/adapter/mcp"
	"pkghub/internal/adapter/npm"
	"pkghub/internal/adapter/nuget"
	"pkghub/internal/adapter/oci"
	"pkghub/internal/adapter/pypi"
	"pkghub/internal/bridge"
	"pkghub/internal/cache"
	"pkghub/internal/config"
	"pkghub/internal/engine"
	"pkghub/internal/fetch"
	"pkghub/pkg/logging"
)

// Config carries the process-level options set by the CLI.
type Config struct {
	// ConfigPath is the configuration directory; empty means the user
	// default.
	ConfigPath string

	// Debug enables verbose logging.
	Debug bool
}

// Application holds the loaded configuration for one process.
type Application struct {
	cfg config.Config
}

// NewApplication initializes logging and loads the configuration.
func NewApplication(c Config) (*Application, error) {
	level := logging.LevelInfo
	if c.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	path := c.ConfigPath
	if path == "" {
		var err error
		path, err = config.GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &Application{cfg: cfg}, nil
}

// RunBridge handshakes the configured adapters and serves the composite
// registry until the context is cancelled. Handshake failures are fatal.
func (a *Application) RunBridge(ctx context.Context) error {
	bc := a.cfg.Bridge
	descriptors := make([]bridge.Descriptor, 0, len(bc.Upstreams))
	for _, u := range bc.Upstreams {
		descriptors = append(descriptors, bridge.Descriptor{
			URL:        u.URL,
			APIKey:     u.APIKey,
			Timeout:    time.Duration(u.TimeoutSeconds) * time.Second,
			HealthPath: u.HealthPath,
		})
	}

	br := bridge.New(bridge.Config{
		Adapters:      descriptors,
		APIKey:        bc.APIKey,
		HealthTimeout: time.Duration(bc.HealthTimeoutSeconds) * time.Second,
	})
	if err := br.Start(ctx); err != nil {
		return fmt.Errorf("bridge startup failed: %w", err)
	}

	logging.Info("Bridge", "ready, serving %d group types on %s", len(br.GroupTypes()), bc.Listen)
	return serve(ctx, bc.Listen, br.Handler())
}

// RunAdapter builds one ecosystem backend, loads its name index, and serves
// the adapter contract until the context is cancelled.
func (a *Application) RunAdapter(ctx context.Context, ecosystem string) error {
	ac, err := a.cfg.Adapter(ecosystem)
	if err != nil {
		return err
	}

	backend, err := buildBackend(ecosystem, ac)
	if err != nil {
		return err
	}
	def := backend.Definition()

	// The first index load happens before serving so the catalog is
	// queryable from the start; failures degrade to an empty index rather
	// than blocking startup.
	if err := backend.Index().Refresh(ctx, def.Ecosystem, backend.LoadIndex); err != nil {
		logging.Warn("Adapter-"+def.Ecosystem, "initial index load failed: %v", err)
	}
	go backend.Index().RunRefresher(ctx, def.Ecosystem,
		time.Duration(ac.RefreshHours)*time.Hour, backend.LoadIndex)

	srv := adapter.NewServer(adapter.ServerConfig{
		Backend: backend,
		APIKey:  ac.APIKey,
		Engine:  engineOpts(ac.Limits),
	})

	logging.Info("Adapter-"+def.Ecosystem, "serving %s/%s on %s", def.GroupType, def.GroupID, ac.Listen)
	return serve(ctx, ac.Listen, srv.Handler())
}

// serve runs an HTTP server until ctx is cancelled, then shuts down
// gracefully with a short drain window.
func serve(ctx context.Context, listen string, handler http.Handler) error {
	server := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// buildBackend maps the adapter section onto the ecosystem's backend.
func buildBackend(ecosystem string, ac config.AdapterConfig) (adapter.Backend, error) {
	up := adapter.Upstream{Fetcher: fetcher(ac.Fetch)}
	c, err := cache.New(cache.Config{
		Size:        ac.Cache.Size,
		PositiveTTL: time.Duration(ac.Cache.PositiveTTLSeconds) * time.Second,
		NegativeTTL: time.Duration(ac.Cache.NegativeTTLSeconds) * time.Second,
		GraceTTL:    time.Duration(ac.Cache.GraceTTLSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	up.Cache = c

	switch ecosystem {
	case "npm":
		return npm.New(npm.Config{Upstream: up, RegistryURL: ac.RegistryURL, CatalogURL: ac.CatalogURL}), nil
	case "pypi":
		return pypi.New(pypi.Config{Upstream: up, BaseURL: ac.RegistryURL}), nil
	case "maven":
		return maven.New(maven.Config{Upstream: up, SearchURL: ac.CatalogURL, RepoURL: ac.RegistryURL, CatalogRows: ac.CatalogRows}), nil
	case "nuget":
		return nuget.New(nuget.Config{Upstream: up, RegistrationURL: ac.RegistryURL, SearchURL: ac.CatalogURL, CatalogRows: ac.CatalogRows}), nil
	case "oci":
		return oci.New(oci.Config{Upstream: up, RegistryURL: ac.RegistryURL, HostID: ac.HostID,
			CatalogDisabled: ac.CatalogDisabled, CatalogPageSize: ac.CatalogRows})
	case "mcp":
		return mcp.New(mcp.Config{Upstream: up, RegistryURL: ac.RegistryURL, ProviderID: ac.ProviderID, PageLimit: ac.CatalogRows}), nil
	default:
		return nil, fmt.Errorf("unknown adapter ecosystem %q", ecosystem)
	}
}

func fetcher(fc config.FetchConfig) *fetch.Fetcher {
	return fetch.New(fetch.Config{
		PerHostConcurrency: fc.PerHostConcurrency,
		QueueDepth:         fc.QueueDepth,
		Timeout:            time.Duration(fc.TimeoutSeconds) * time.Second,
		MaxAttempts:        fc.MaxAttempts,
		MaxBodyBytes:       fc.MaxBodyBytes,
		UserAgent:          "pkghub",
	})
}

func engineOpts(l config.LimitsConfig) engine.Opts {
	if l == (config.LimitsConfig{}) {
		return engine.Opts{}
	}
	opts := engine.DefaultOpts()
	opts.RequireNameFilter = true
	if l.DefaultLimit > 0 {
		opts.DefaultLimit = l.DefaultLimit
	}
	if l.MaxLimit > 0 {
		opts.MaxLimit = l.MaxLimit
	}
	if l.CandidateLimit > 0 {
		opts.CandidateLimit = l.CandidateLimit
	}
	return opts
}
