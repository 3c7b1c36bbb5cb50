package cli

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/archive"
	"github.com/glorpus-work/querykit/pkg/auth"
	"github.com/glorpus-work/querykit/pkg/bus"
	"github.com/glorpus-work/querykit/pkg/cache"
	"github.com/glorpus-work/querykit/pkg/config"
	"github.com/glorpus-work/querykit/pkg/download"
	"github.com/glorpus-work/querykit/pkg/metrics"
	"github.com/glorpus-work/querykit/pkg/orchestrator"
	"github.com/glorpus-work/querykit/pkg/registry"
	"github.com/glorpus-work/querykit/pkg/repomd"
	"github.com/glorpus-work/querykit/pkg/sack"
	"github.com/glorpus-work/querykit/pkg/service"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command, which runs the daemon.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the query daemon",
		Long: `Load the metadata of every configured distribution and answer
queries on the message bus until interrupted.

Distributions whose metadata cannot be loaded are left out; the daemon
starts as long as one of them loads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	distros, err := cfg.ResolveDistros()
	if err != nil {
		return err
	}

	storePath, err := cfg.StorePath()
	if err != nil {
		return err
	}
	store, err := cache.OpenStore(storePath, sack.SchemaVersion)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	hosts, err := auth.NewHosts(cfg.Settings.Credentials)
	if err != nil {
		return err
	}
	dl := download.NewManager(cfg.Settings.HTTPTimeout, cfg.Settings.UserAgent, download.WithAuth(hosts))
	loader := orchestrator.New(
		repomd.NewResolver(dl, cfg.Settings.URLSchemes),
		dl,
		archive.NewManager(),
		store,
		orchestrator.Hooks{OnEvent: logEvent},
		orchestrator.Options{Concurrency: cfg.Settings.MaxConcurrentDownloads},
	)

	m := metrics.New()

	// The bus server is created after the initial load; changes before
	// that are published when it is.
	var server atomic.Pointer[bus.Server]
	reg := registry.New(loader,
		registry.WithMaxConcurrentLoads(cfg.Settings.MaxConcurrentLoads),
		registry.WithLoadTimeout(cfg.Settings.LoadTimeout),
		registry.WithRetryFailed(cfg.Settings.RetryFailedDistros),
		registry.WithMetrics(m),
		registry.WithOnChange(func(ids []string) {
			if s := server.Load(); s != nil {
				s.SetDistros(ids)
			}
		}),
	)
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn("Failed to release distribution handles", logger.Fields{"error": err})
		}
	}()

	logger.Info("Loading distributions", logger.Fields{"count": len(distros)})
	report, err := reg.Initialize(ctx, distros)
	if err != nil {
		return err
	}
	for id, loadErr := range report.Failed {
		logger.Error("Distribution left out", logger.Fields{"distro": id, "error": loadErr})
	}
	logger.Success("Distributions loaded", logger.Fields{"distros": report.Loaded})

	ttl := cfg.Settings.CacheTTL
	if cfg.Settings.DisableCache {
		ttl = 0
	}
	svc := service.New(reg, service.Options{
		CacheTTL:   ttl,
		CacheSize:  cfg.Settings.CacheSize,
		Metrics:    m,
		URLSchemes: cfg.Settings.URLSchemes,
	})
	defer svc.Close()

	conn, err := bus.Connect(cfg.Bus.Type)
	if err != nil {
		return fmt.Errorf("failed to connect to the %s bus: %w", cfg.Bus.Type, err)
	}
	defer func() { _ = conn.Close() }()

	srv, err := bus.NewServer(ctx, conn, svc, bus.ServerOptions{
		Name:    cfg.Bus.Name,
		Path:    cfg.Bus.Path,
		Version: Version,
	})
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()
	server.Store(srv)
	srv.SetDistros(reg.ListDistros())

	refresher, err := registry.NewRefresher(reg, cfg.Settings.RefreshSchedule)
	if err != nil {
		return err
	}
	refresher.Start(ctx)
	defer refresher.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	if cfg.Settings.WatchRepos {
		watcher, err := registry.NewWatcher(reg, distros)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Run(ctx)
		}()
	}

	if addr := cfg.Settings.MetricsAddress; addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Serve(ctx, addr); err != nil {
				logger.Error("Metrics endpoint failed", logger.Fields{"address": addr, "error": err})
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

func logEvent(ev orchestrator.Event) {
	fields := logger.Fields{"distro": ev.Distro, "phase": ev.Phase}
	if ev.ID != "" {
		fields["repo"] = ev.ID
	}
	if ev.Msg != "" {
		fields["detail"] = ev.Msg
	}
	if ev.Phase == "error" {
		logger.Warn("Load event", fields)
		return
	}
	logger.Debug("Load event", fields)
}
