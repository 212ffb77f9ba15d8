package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obsidianstack/sensorsd/internal/alert"
	"github.com/obsidianstack/sensorsd/internal/api"
	"github.com/obsidianstack/sensorsd/internal/config"
	"github.com/obsidianstack/sensorsd/internal/daemon"
	"github.com/obsidianstack/sensorsd/internal/notify"
	"github.com/obsidianstack/sensorsd/internal/sensor"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	debug := flag.Bool("d", false, "log at debug level in text form to stderr")
	flag.Parse()

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	if *debug {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))

	if err := run(*configPath); err != nil {
		slog.Error("sensorsd: exiting", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"path", configPath,
		"source", cfg.Source.Type,
		"watches", len(cfg.Watches),
		"check_interval", cfg.CheckInterval,
		"report_interval", cfg.ReportInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := sensor.New(cfg.Source)
	if err != nil {
		return err
	}
	table, err := daemon.Init(ctx, cfg, src)
	if err != nil {
		return err
	}

	notifiers, err := notify.Build(cfg.Notify)
	if err != nil {
		return err
	}
	defer notifiers.Close()

	dispatcher := alert.NewDispatcher(table, alert.ShellLauncher{}, notifiers)
	d := daemon.New(cfg, src, table, dispatcher, func() (*config.Config, error) {
		return config.Load(configPath)
	})

	// SIGHUP and edits of the config file both request a reload; the loop
	// applies it between passes.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				slog.Info("sensorsd: SIGHUP received, reloading")
				d.RequestReload()
			}
		}
	}()
	go func() {
		if err := config.WatchFile(ctx, configPath, d.RequestReload); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	if cfg.Status.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Status.Listen,
			Handler:           api.New(table),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       30 * time.Second,
		}
		go func() {
			slog.Info("status API listening", "addr", cfg.Status.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status API stopped", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	err = d.Run(ctx)
	dispatcher.Wait()
	slog.Info("sensorsd shutting down")
	return err
}
