// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from config.Config; resources come from the module
// tree under app.modules_dir plus any compiled-in modules.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	apihttp "github.com/artpar/calm/adapters/http"
	"github.com/artpar/calm/adapters/metrics"
	"github.com/artpar/calm/config"
	"github.com/artpar/calm/core/discovery"
	"github.com/artpar/calm/core/registry"
	"github.com/artpar/calm/core/resource"
	"github.com/artpar/calm/core/schema"
	"github.com/artpar/calm/core/storage"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	DB         storage.Database
	Registry   *registry.Registry
	Resources  []*resource.Resource
	Metrics    *metrics.Collector
	Handler    http.Handler
	HTTPServer *http.Server

	holder *config.Holder
}

// Options configures application initialization.
type Options struct {
	// Config is required unless Holder is set.
	Config *config.Config

	// Holder, when set, supplies the config and enables hot reload of the
	// log level on file change and SIGHUP.
	Holder *config.Holder

	// Modules are compiled-in resources registered after the module tree.
	Modules []schema.Module

	// ModulesFS replaces os.DirFS(app.modules_dir).
	ModulesFS fs.FS

	// LogOutput defaults to os.Stdout.
	LogOutput io.Writer

	Version string
}

// New creates and initializes the application. A database that cannot be
// opened or pinged is an error; a module that fails to register is logged
// and skipped.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if opts.Holder != nil {
		cfg = opts.Holder.Get()
	}
	if cfg == nil {
		return nil, fmt.Errorf("no configuration")
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := NewLogger(cfg.Logging, out)

	logger.Info().
		Str("environment", cfg.App.Environment).
		Msg("initializing calm")

	a := &App{
		Logger: logger,
		Config: cfg,
		holder: opts.Holder,
	}

	ctx := context.Background()

	db, err := OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.DB = db
	logger.Info().
		Str("driver", cfg.Database.Driver).
		Str("dsn", cfg.Database.DSN).
		Msg("database initialized")

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(promReg)
		metricsHandler = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	a.Registry = registry.New(logger)
	a.Registry.SetBasePrefix(cfg.App.Prefix)

	modulesFS := opts.ModulesFS
	if modulesFS == nil {
		modulesFS = a.modulesDir(cfg.App.ModulesDir)
	}

	var sources discovery.Multi
	if modulesFS != nil {
		sources = append(sources, discovery.New(modulesFS, logger))
	}
	sources = append(sources, discovery.Static(opts.Modules))

	if err := a.loadModules(ctx, sources); err != nil {
		a.DB.Close()
		return nil, fmt.Errorf("load modules: %w", err)
	}

	a.Handler = apihttp.NewRouter(a.Registry, apihttp.NewHealthHandler(a.DB), logger, apihttp.RouterConfig{
		Metrics:        a.Metrics,
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		Development:    cfg.App.IsDevelopment(),
		RequestTimeout: cfg.Server.WriteTimeout,
		Version:        opts.Version,
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if a.holder != nil {
		a.holder.OnChange(a.applyConfig)
		if a.Metrics != nil {
			a.holder.OnError(a.Metrics.RecordReload)
		}
	}

	return a, nil
}

// modulesDir returns the module tree at dir, or nil when it does not exist.
func (a *App) modulesDir(dir string) fs.FS {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		a.Logger.Warn().Str("modules_dir", dir).Msg("modules directory not found, no modules discovered")
		return nil
	}
	return os.DirFS(dir)
}

// loadModules registers every discovered module. A failing module is logged
// and counted, the rest still load.
func (a *App) loadModules(ctx context.Context, src discovery.Source) error {
	units, err := src.Discover()
	if err != nil {
		return err
	}

	opts := resource.Options{
		DefaultLimit: a.Config.App.DefaultLimit,
		Logger:       a.Logger,
	}

	for _, u := range units {
		res, err := resource.Register(ctx, a.Registry, u.Module, a.DB, opts)
		if err != nil {
			a.Logger.Error().
				Err(err).
				Str("module", u.Module.Name).
				Str("file", u.Path).
				Msg("failed to register module")
			if a.Metrics != nil {
				a.Metrics.DiscoveryFailures.WithLabelValues(u.Module.Name).Inc()
			}
			continue
		}

		a.Resources = append(a.Resources, res)
		a.Logger.Info().
			Str("module", res.Derived.Name).
			Str("path", res.Table.BasePath()).
			Int("routes", len(res.Table.Routes())).
			Msg("module registered")
	}

	if a.Metrics != nil {
		a.Metrics.ResourcesRegistered.Set(float64(a.Registry.Len()))
	}
	a.Logger.Info().Int("count", a.Registry.Len()).Msg("modules loaded")
	return nil
}

// applyConfig applies the hot-reloadable parts of a new configuration.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if a.Metrics != nil {
		a.Metrics.RecordReload(nil)
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.holder.WatchSignals()
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	timeout := a.Config.Server.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Close database
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// OpenDatabase opens and pings the configured database.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (storage.Database, error) {
	var db storage.Database
	switch cfg.Driver {
	case "memory":
		db = storage.NewMemoryStore()
	case "sqlite", "":
		s, err := storage.NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		db = s
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewLogger builds the process logger and sets the global level.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
