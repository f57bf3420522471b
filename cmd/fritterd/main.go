package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"

	"fritter/internal/config"
	"fritter/internal/eventbus"
	"fritter/internal/observability"
	"fritter/internal/storage"
	"fritter/internal/timetable"
	"fritter/pkg/drivers/wall"
	"fritter/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./fritterd.yaml", "path to config yaml/json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("loading config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logxConfig(cfg), nil)
	defer logSvc.Close()
	cfgMgr.SetLogger(log)

	store, err := storage.Open(storageConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	bus := eventbus.New()
	drv := wall.New(
		wall.WithLocation(cfg.Location()),
		wall.WithPanicHandler(func(r any) {
			log.Error("scheduled work panicked", "panic", r)
		}),
	)

	var collector *observability.Collector
	if cfg.Metrics.Enabled {
		collector, err = observability.NewCollector(nil)
		if err != nil {
			return err
		}
		go collector.Observe(ctx, bus)
		go func() {
			serveCfg := observability.ServerConfig{Addr: cfg.Metrics.Addr, Pprof: cfg.Metrics.Pprof}
			if serr := observability.Serve(ctx, serveCfg, collector, log); serr != nil {
				log.Error("metrics server failed", "err", serr)
			}
		}()
	}

	svc := timetable.New(drv, log, bus, store, collector)

	// The loop gets its own context: it must keep servicing Invoke until
	// the timetable has shut down.
	loopCtx, loopCancel := context.WithCancel(context.Background())
	defer loopCancel()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = drv.Run(loopCtx)
	}()

	svc.Start(cfg)
	log.Info("fritterd started", "config", cfgPath, "jobs", len(cfg.Jobs))

	// Hot reload: re-apply logging and the job set on each commit.
	sub := cfgMgr.Subscribe(4)
	defer cfgMgr.Unsubscribe(sub)
	go func() {
		for newCfg := range sub {
			logSvc.Apply(logxConfig(newCfg))
			svc.Apply(newCfg)
		}
	}()
	go func() { _ = cfgMgr.Watch(ctx) }()

	notifySystemd(ctx, log)

	<-ctx.Done()
	_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)
	svc.Stop()
	loopCancel()
	<-loopDone
	log.Info("fritterd stopped")
	return nil
}

// notifySystemd reports readiness and services the watchdog when the
// process runs under systemd; outside systemd both are no-ops.
func notifySystemd(ctx context.Context, log logx.Logger) {
	if ok, err := sddaemon.SdNotify(false, sddaemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify failed", "err", err)
	} else if ok {
		log.Debug("systemd notified ready")
	}

	interval, err := sddaemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyWatchdog)
			}
		}
	}()
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    cfg.Logging.Alert.Enabled,
			MinLevel:   cfg.Logging.Alert.MinLevel,
			RatePerSec: cfg.Logging.Alert.RatePerSec,
		},
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout.Std(),
	}
}
