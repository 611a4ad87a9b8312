package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/dosekeeper/internal/audit"
	"github.com/fentz26/dosekeeper/internal/config"
	"github.com/fentz26/dosekeeper/internal/connectors"
	"github.com/fentz26/dosekeeper/internal/connectors/localexec"
	"github.com/fentz26/dosekeeper/internal/connectors/webhook"
	"github.com/fentz26/dosekeeper/internal/controlplane"
	"github.com/fentz26/dosekeeper/internal/logging"
	"github.com/fentz26/dosekeeper/internal/metrics"
	"github.com/fentz26/dosekeeper/internal/registry"
	"github.com/fentz26/dosekeeper/internal/reminder"
	"github.com/fentz26/dosekeeper/internal/scheduler"
	"github.com/fentz26/dosekeeper/internal/store"
	"github.com/fentz26/dosekeeper/internal/store/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	envFile    string
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the dosekeeper daemon",
	Long:  `Starts the daemon which scans for due doses, sends reminders and serves the HTTP API.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", "", "Config file (default ~/.dosekeeper/config.yaml)")
	daemonCmd.Flags().StringVar(&envFile, "env", ".env", "Optional .env file with DOSEKEEPER_* variables")
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database, or :memory:")
}

// daemon holds the wired components of a running daemon.
type daemon struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *store.Store
	reg    *registry.Registry
	ctrl   *reminder.Controller
	sched  *scheduler.Scheduler
	server *controlplane.Server
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting dosekeeper daemon",
		zap.String("listen", cfg.Listen),
		zap.String("db", cfg.DBPath),
		zap.String("notifier", cfg.Notifier.Kind))

	d, err := newDaemon(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	d.sched.Start()
	defer d.sched.Stop()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := d.server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			d.close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := d.server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}
	d.close()

	logger.Info("shutdown complete")
	return nil
}

// newDaemon opens storage, loads the registry and wires every component.
func newDaemon(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*daemon, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	d := &daemon{cfg: cfg, logger: logger}

	var persister registry.Persister
	var recorder audit.Recorder = audit.Discard{}
	if cfg.DBPath == config.MemoryDB {
		persister = memory.New()
	} else {
		db, err := store.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		d.db = db
		persister = db
		recorder = audit.NewPDRWriter(db)
	}

	d.reg = registry.New(persister)
	if err := d.reg.Load(ctx); err != nil {
		d.close()
		return nil, fmt.Errorf("loading medications: %w", err)
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		d.close()
		return nil, err
	}
	vibration, err := connectors.PatternByName(cfg.Vibration)
	if err != nil {
		d.close()
		return nil, err
	}

	m := metrics.New()
	d.ctrl = reminder.NewController(d.reg, reminder.Options{
		Notifier:  notifier,
		Audit:     recorder,
		Metrics:   m,
		Logger:    logger.Named("reminder"),
		Vibration: vibration,
		Guardian: reminder.Guardian{
			Enabled: cfg.Guardian.Enabled,
			Name:    cfg.Guardian.Name,
			After:   cfg.Guardian.After,
		},
	})

	d.sched, err = scheduler.New(d.ctrl, &cfg.Scheduler, logger.Named("scheduler"))
	if err != nil {
		d.close()
		return nil, err
	}

	service := controlplane.NewService(d.reg, d.ctrl, recorder, time.Now).
		WithScheduler(d.sched).
		WithLogger(logger.Named("service"))
	var pinger controlplane.Pinger
	if d.db != nil {
		service.WithAuditLog(d.db)
		pinger = d.db
	}
	d.server = controlplane.NewServer(service, pinger, m, logger.Named("http"), cfg.Listen)

	logger.Info("registry loaded", zap.Int("medications", len(d.reg.List(""))))
	return d, nil
}

func newNotifier(cfg *config.Config, logger *zap.Logger) (connectors.Notifier, error) {
	switch cfg.Notifier.Kind {
	case config.NotifierDesktop:
		return localexec.New("dosekeeper"), nil
	case config.NotifierWebhook:
		return webhook.New(webhook.DefaultConfig(cfg.Notifier.WebhookURL), logger.Named("webhook")), nil
	case config.NotifierNone:
		return connectors.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown notifier kind %q", cfg.Notifier.Kind)
	}
}

func (d *daemon) close() {
	if d.db == nil {
		return
	}
	if err := d.db.Close(); err != nil {
		d.logger.Warn("database close error", zap.Error(err))
	}
}
