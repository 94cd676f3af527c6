package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nvsettings/nvsettings/internal/clock"
	"github.com/nvsettings/nvsettings/internal/config"
	"github.com/nvsettings/nvsettings/internal/device"
	"github.com/nvsettings/nvsettings/internal/metrics"
	"github.com/nvsettings/nvsettings/internal/nvs"
	"github.com/nvsettings/nvsettings/internal/persist"
	"github.com/nvsettings/nvsettings/internal/server"
	"github.com/nvsettings/nvsettings/internal/settings"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nvsettings",
		Short: "nvsettings - persistent device settings service",
		Long: `nvsettings keeps a typed settings registry in a non-volatile key-value
store and exposes it over HTTP for a settings web page.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE:          runServer,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.AddFlags(rootCmd)

	rootCmd.AddCommand(
		newPrintCmd(),
		newExportCmd(),
		newSetCmd(),
		newEraseCmd(),
	)
	return rootCmd
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg.LogLevel, cfg.LogFormat)

	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"date":    date,
	}).Info("Starting nvsettings")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logrus.Info("Received shutdown signal")
		cancel()
	}()

	// A restart request reloads the registry from the store, the way a
	// device comes back from reboot.
	for {
		restarted, err := serve(ctx, cfg)
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		if !restarted || ctx.Err() != nil {
			break
		}
		logrus.Info("Restarting")
	}

	logrus.Info("nvsettings stopped")
	return nil
}

func serve(ctx context.Context, cfg *config.Config) (bool, error) {
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return false, err
	}
	defer rt.close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var restarted atomic.Bool
	srv := server.New(cfg, rt.pack, rt.codec,
		server.WithLogger(logrus.StandardLogger()),
		server.WithMetrics(rt.metrics),
		server.WithRestart(func() {
			restarted.Store(true)
			stop()
		}),
	)

	if err := srv.Start(runCtx); err != nil {
		return false, err
	}
	return restarted.Load(), nil
}

// runtime bundles what every command needs: an open store and a
// registry loaded from it.
type runtime struct {
	store   nvs.Store
	pack    *settings.Pack
	codec   *persist.Codec
	metrics metrics.Manager
}

func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger := logrus.StandardLogger()

	store, err := nvs.Open(nvs.Options{
		Backend:    cfg.Store.Backend,
		DataDir:    cfg.DataDir,
		MaxKeyLen:  cfg.Store.MaxKeyLen,
		SyncWrites: cfg.Store.SyncWrites,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	loc, err := cfg.Clock.Location()
	if err != nil {
		store.Close()
		return nil, err
	}
	clk := &clock.System{Location: loc, AllowSet: cfg.Clock.AllowSet, Logger: logger}

	metricsManager := metrics.NewManager(metrics.Config{Enabled: cfg.Metrics.Enable})

	pack, err := device.NewPack(
		settings.HandlerFunc(func(p *settings.Pack) {
			logger.WithField("settings", p.Len()).Debug("Settings changed")
		}),
		settings.WithNow(clk.Now),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build settings registry: %w", err)
	}

	codec := persist.New(store, clk,
		persist.WithNamespace(cfg.Store.Namespace),
		persist.WithMaxKeyLen(cfg.Store.MaxKeyLen),
		persist.WithLogger(logger),
		persist.WithMetrics(metricsManager),
	)
	if err := codec.Load(ctx, pack); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	return &runtime{store: store, pack: pack, codec: codec, metrics: metricsManager}, nil
}

func (rt *runtime) close() {
	if err := rt.store.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close settings store")
	}
}

func setupLogging(level, format string) {
	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
