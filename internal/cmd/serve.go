package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agritutor/agritutor/internal/appid"
	"github.com/agritutor/agritutor/internal/config"
	errwrap "github.com/agritutor/agritutor/internal/errors"
	"github.com/agritutor/agritutor/internal/metrics"
	"github.com/agritutor/agritutor/internal/observability"
	"github.com/agritutor/agritutor/internal/server"
	"github.com/agritutor/agritutor/internal/server/handlers"
	"github.com/agritutor/agritutor/internal/store"
)

const uptimeInterval = 15 * time.Second

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	identity *appid.Identity
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.identity == nil:
		return errwrap.Wrap(ctx, errwrap.CodeConfigInvalid, nil, "app identity not loaded")
	case i.identity.BinaryName == "":
		return errwrap.Wrap(ctx, errwrap.CodeConfigInvalid, nil, "app identity missing binary name")
	case i.identity.EnvPrefix == "":
		return errwrap.Wrap(ctx, errwrap.CodeConfigInvalid, nil, "app identity missing env prefix")
	}
	return nil
}

// storeHealthChecker pings the response cache database.
type storeHealthChecker struct {
	store *store.Store
}

func (s storeHealthChecker) CheckHealth(ctx context.Context) error {
	return s.store.Ping(ctx)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server with graceful shutdown support.

Serves the prompt catalog, template filling and model-backed ask/lesson
endpoints under /v1, plus health, version and metrics endpoints.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (validated; restart to apply server settings)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := GetAppIdentity()

		cfg, err := config.Load(ctx)
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
			return err
		}

		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile)
		log := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port); err != nil {
				log.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		catalog, err := loadCatalog(cfg)
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Cannot load prompt catalog", err)
			return err
		}
		for _, issue := range catalog.Lint() {
			log.Warn("Catalog issue",
				zap.String("template", issue.TemplateID),
				zap.String("kind", string(issue.Kind)),
				zap.String("message", issue.Message))
		}
		metrics.SetCatalogTemplates(catalog.Source(), catalog.Len())

		var db *store.Store
		if cfg.Cache.TTL > 0 {
			db, err = openStore(ctx, cfg)
			if err != nil {
				log.Warn("Response cache disabled: store unavailable", zap.Error(err))
			}
		}

		svc := newTutorService(cfg, catalog, nil)
		if db != nil {
			svc.Cache = db
			svc.Limiter.Store = db
		}

		log.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("version", versionInfo.Version),
			zap.String("catalog", catalog.Source()),
			zap.Int("templates", catalog.Len()),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("metrics", cfg.Metrics.Enabled),
			zap.Bool("cache", svc.Cache != nil))

		hm := handlers.InitHealthManager(versionInfo.Version)
		hm.RegisterChecker("catalog", handlers.CatalogChecker(catalog))
		hm.RegisterChecker("app_identity", identityHealthChecker{identity: identity})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		if db != nil {
			hm.RegisterChecker("store", storeHealthChecker{store: db})
		}

		handlers.SetAppIdentity(identity)

		opts := server.OptionsFromConfig(cfg)
		opts.Catalog = catalog
		opts.Tutor = svc
		opts.AdminToken = strings.TrimSpace(os.Getenv(identity.Env("ADMIN_TOKEN")))
		srv := server.New(opts)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}

		startedAt := time.Now()
		metrics.SetServerStartTime(startedAt.Unix())
		uptimeCtx, stopUptime := context.WithCancel(context.Background())
		go reportUptime(uptimeCtx, startedAt)

		// Shutdown handlers run last registered first.
		signals.OnShutdown(func(ctx context.Context) error {
			log.Info("Flushing logger...")
			if err := log.Sync(); err != nil {
				log.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			stopUptime()
			if err := observability.ShutdownMetrics(); err != nil {
				log.Warn("Metrics exporter shutdown failed", zap.Error(err))
			}
			if db != nil {
				if err := db.Close(); err != nil {
					log.Warn("Store close failed", zap.Error(err))
				}
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			log.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			log.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			log.Info("Received SIGHUP: attempting config reload")
			if err := reloadConfig(ctx); err != nil {
				log.Error("Config reload failed", zap.String("file", viper.ConfigFileUsed()), zap.Error(err))
				return errwrap.Wrap(ctx, errwrap.CodeConfigInvalid, err, "config reload failed")
			}
			log.Info("Configuration reloaded", zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			log.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			log.Info("Starting HTTP server...", zap.String("addr", srv.Addr()))
			if err := srv.Start(); err != nil {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				log.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(ctx, err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

// reloadConfig re-reads the config file and validates the result. Running
// components keep their settings; only the logging level follows reloads.
func reloadConfig(ctx context.Context) error {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if identity := GetAppIdentity(); identity != nil {
		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile)
	}
	return nil
}

func reportUptime(ctx context.Context, startedAt time.Time) {
	ticker := time.NewTicker(uptimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			metrics.SetServerUptime(int64(now.Sub(startedAt).Seconds()))
		}
	}
}
