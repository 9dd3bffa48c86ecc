package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"barojab/internal/capture"
	"barojab/internal/config"
	appLog "barojab/internal/log"
	"barojab/internal/session"
	"barojab/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	appLog.Info("barojab starting", "version", "0.1.0")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"login_enabled", conf.LoginEnabled(),
		"ics_count", len(conf.ICS),
		"snapshot_enabled", conf.Snapshot.Enabled,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	sessions := session.NewStore(time.Duration(conf.SessionTTLHours) * time.Hour)

	srv, err := web.NewServer(conf, sessions, flags.debug)
	if err != nil {
		appLog.Error("failed to initialize web server", err)
		os.Exit(1)
	}

	if flags.once {
		// Single-shot: warm the marker cache, optionally snapshot, and exit.
		srv.RefreshMarkers(ctx)
		if conf.Snapshot.Enabled {
			runSnapshot(ctx, conf, flags.debug)
		}
		appLog.Info("single-shot run completed")
		return
	}

	// Periodic jobs: marker refresh, session sweep and page snapshot share
	// the one refresh schedule.
	sched := cron.New()
	_, err = sched.AddFunc(conf.RefreshCron, func() {
		srv.RefreshMarkers(ctx)
		if removed := sessions.Sweep(); removed > 0 {
			appLog.Info("session sweep", "removed", removed, "live", sessions.Len())
		}
		if conf.Snapshot.Enabled {
			runSnapshot(ctx, conf, flags.debug)
		}
	})
	if err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	if err := web.StartServer(ctx, srv); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("barojab exiting")
}

// runSnapshot captures the rendered month page to the configured PNG path.
func runSnapshot(ctx context.Context, conf *config.Config, debug bool) {
	outputPath := conf.Snapshot.OutputPath
	if debug {
		outputPath = "./cache/preview.png"
	}

	err := capture.SnapshotPage(ctx, capture.Options{
		URL:        "http://" + conf.Listen + "/",
		OutputPath: outputPath,
		Width:      conf.Snapshot.Width,
		Height:     conf.Snapshot.Height,
	})
	if err != nil {
		appLog.Error("page snapshot failed", err, "output", outputPath)
		return
	}
	appLog.Info("page snapshot written", "output", outputPath)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/barojab/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one marker refresh (+snapshot) and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug mode: verbose logging, relative cache paths")

	flag.Parse()

	return cfg
}
