package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xiy/garbageman/internal/admin"
	"github.com/xiy/garbageman/internal/config"
	"github.com/xiy/garbageman/internal/daemon"
	"github.com/xiy/garbageman/internal/events"
	"github.com/xiy/garbageman/internal/metrics"
	"github.com/xiy/garbageman/internal/publish"
	"github.com/xiy/garbageman/internal/purge"
	"github.com/xiy/garbageman/internal/report"
	"github.com/xiy/garbageman/internal/store"
)

const defaultConfigPath = "config/garbageman.yaml"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "purge":
		err = runPurge(os.Args[2:])
	case "schedule":
		err = runSchedule(os.Args[2:])
	case "publish-config":
		err = runPublish(os.Args[2:])
	case "admin":
		err = runAdmin(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Println("garbageman v0.1.0")
		return
	default:
		usage()
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runPurge(args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sum, err := purgeOnce(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	logger.Debug("purge finished", "run_id", sum.RunID, "deleted", sum.Deleted(), "skipped", len(sum.Skipped))
	return nil
}

func runSchedule(args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(nil)
	srv := startMetricsServer(cfg.MetricsAddr, collector.Router(), logger)

	sched := daemon.New(cfg.Cron, logger, func(ctx context.Context) error {
		// The config is re-read on every tick so edits apply without a restart.
		tickCfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		if err := tickCfg.EnsurePaths(); err != nil {
			return err
		}
		started := time.Now()
		_, err = purgeOnce(ctx, tickCfg, logger, collector)
		collector.RunFinished(started, time.Now(), err)
		return err
	})
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	sched.Stop()

	if srv == nil {
		return nil
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

// startMetricsServer serves h on addr in the background. An empty addr
// disables the server and returns nil.
func startMetricsServer(addr string, h http.Handler, logger *log.Logger) *http.Server {
	if addr == "" {
		logger.Info("metrics server disabled")
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func runPublish(args []string) error {
	fs := flag.NewFlagSet("publish-config", flag.ContinueOnError)
	path := fs.String("path", defaultConfigPath, "Destination of the published config")
	force := fs.Bool("force", false, "Overwrite an existing file")
	dryRun := fs.Bool("dry-run", false, "Log what would be written without writing")
	printOnly := fs.Bool("print", false, "Print the default config to stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *printOnly {
		_, err := os.Stdout.Write(publish.Template())
		return err
	}
	logger := log.New(os.Stderr)
	return publish.Publish(logger, publish.Options{Path: *path, Force: *force, DryRun: *dryRun})
}

func runAdmin(args []string) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := log.New(os.Stderr)
	db, err := store.Open(context.Background(), cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return admin.Run(ctx, store.NewRegistry(db, cfg.Models), cfg)
}

func loadConfig(path string) (config.Config, *log.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return cfg, nil, err
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "garbageman"})
	setLogLevel(logger, cfg.LogLevel)
	return cfg, logger, nil
}

// purgeOnce opens the store, wires the sinks and notifier for cfg and runs a
// single purge over the configured schedule.
func purgeOnce(ctx context.Context, cfg config.Config, logger *log.Logger, m purge.Metrics) (purge.Summary, error) {
	runID := uuid.NewString()

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return purge.Summary{}, err
	}
	defer db.Close()

	bus := events.NewBus(cfg.Events.Namespace)
	if cfg.DispatchPurgeEvents && cfg.Events.RedisAddr != "" {
		client, err := events.DialRedis(ctx, cfg.Events.RedisAddr, cfg.Events.RedisPassword, cfg.Events.RedisDB)
		if err != nil {
			return purge.Summary{}, err
		}
		defer func(c *redis.Client) { _ = c.Close() }(client)
		bus.ListenAll(events.NewRedisForwarder(client, cfg.Events.Namespace, cfg.Events.RedisChannel).Listener())
	}

	// The log sink filters by its own threshold, so the logger underneath
	// must let every level through.
	sinkLogger := logger.With("run_id", runID)
	sinkLogger.SetLevel(log.DebugLevel)
	rep := report.NewReporter(report.NewTerminal(os.Stdout), report.NewLogger(sinkLogger), thresholds(cfg.LoggingLevel))

	job := purge.NewJob(store.NewRegistry(db, cfg.Models), rep, purge.SettingsFrom(cfg), purge.Options{
		Notifier: bus,
		Metrics:  m,
		RunID:    runID,
	})
	return job.Run(ctx, cfg.Schedule)
}

func thresholds(levels map[string]int) report.Thresholds {
	out := report.Thresholds{}
	for name, lvl := range levels {
		switch name {
		case config.SinkConsole:
			out[report.Console] = lvl
		case config.SinkLog:
			out[report.Log] = lvl
		}
	}
	return out
}

func setLogLevel(logger *log.Logger, level string) {
	switch level {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
}

func usage() {
	fmt.Print(`garbageman

Usage:
  garbageman purge [--config path]
  garbageman schedule [--config path]
  garbageman publish-config [--path path] [--force] [--dry-run] [--print]
  garbageman admin [--config path]
  garbageman version
`)
}
