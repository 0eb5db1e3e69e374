package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datastream/datastream/server/internal/api"
	"github.com/datastream/datastream/server/internal/config"
	"github.com/datastream/datastream/server/internal/generator"
	"github.com/datastream/datastream/server/internal/metrics"
	"github.com/datastream/datastream/server/internal/session"
	"github.com/datastream/datastream/server/internal/stream"
	"github.com/datastream/datastream/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file; defaults apply if it does not exist")
	watch := flag.Bool("watch", true, "reload log level and stream cadence when the config file changes")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("datastream-server starting", "config", *configPath)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"ws_path", cfg.Server.WSPath,
		"initial_delay", cfg.Stream.InitialDelay,
		"period", cfg.Stream.Period,
		"log_level", cfg.Log.Level,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	gen := generator.NewMock(
		generator.WithCountries(cfg.Generator.Countries),
		generator.WithSeed(cfg.Generator.Seed),
	)
	streamer := stream.New(gen,
		stream.WithMetrics(m),
		stream.WithConfig(stream.Config{
			InitialDelay: cfg.Stream.InitialDelay,
			Period:       cfg.Stream.Period,
		}),
	)

	hub := ws.New(session.NewRegistry(), gen, streamer, ws.Options{
		WriteTimeout:         cfg.Server.WriteTimeout,
		PongWait:             cfg.Server.PongWait,
		ReadLimit:            cfg.Server.ReadLimit,
		AllowedOrigins:       cfg.Server.AllowedOrigins,
		BroadcastConcurrency: cfg.Broadcast.Concurrency,
		Metrics:              m,
	})

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	if *watch {
		if _, err := os.Stat(*configPath); err == nil {
			go func() {
				err := config.Watch(ctx, *configPath, func(next *config.Config) {
					applyReload(cfg, next, level, streamer)
				})
				if err != nil {
					slog.Error("config watcher stopped", "err", err)
				}
			}()
		}
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WSPath, hub)
	mux.Handle("/api/", api.New(hub))
	mux.Handle("/metrics", m.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort, "ws_path", cfg.Server.WSPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("datastream-server shutting down")
	<-hubDone

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// loadConfig reads path, falling back to defaults when the file is absent.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Defaults(), nil
	}
	return config.Load(path)
}

// applyReload applies the hot-reloadable settings from next. Listener
// settings only take effect after a restart.
func applyReload(cur, next *config.Config, level *slog.LevelVar, streamer *stream.Streamer) {
	level.Set(next.Log.SlogLevel())

	err := streamer.SetConfig(stream.Config{
		InitialDelay: next.Stream.InitialDelay,
		Period:       next.Stream.Period,
	})
	if err != nil {
		slog.Error("config: stream cadence rejected", "err", err)
	}

	if next.Server.HTTPPort != cur.Server.HTTPPort || next.Server.WSPath != cur.Server.WSPath {
		slog.Warn("config: listener changes require a restart",
			"http_port", next.Server.HTTPPort, "ws_path", next.Server.WSPath)
	}
	slog.Info("config: applied",
		"log_level", next.Log.Level,
		"initial_delay", next.Stream.InitialDelay,
		"period", next.Stream.Period,
	)
}
