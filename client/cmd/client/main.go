package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datastream/datastream/client/internal/feed"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "datastream WebSocket endpoint")
	origin := flag.String("origin", "", "Origin header to send; required by servers with an origin allow-list")
	ping := flag.Duration("ping", 0, "send a \"ping\" text frame at this interval; 0 disables")
	verbose := flag.Bool("v", false, "log every message")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var header http.Header
	if *origin != "" {
		header = http.Header{"Origin": []string{*origin}}
	}

	c, err := feed.Dial(ctx, *url, header)
	if err != nil {
		slog.Error("failed to connect", "url", *url, "err", err)
		os.Exit(1)
	}
	slog.Info("datastream-client connected", "url", *url)

	if *ping > 0 {
		go func() {
			t := time.NewTicker(*ping)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if err := c.Send("ping"); err != nil {
						slog.Warn("ping failed", "err", err)
						return
					}
				}
			}
		}()
	}

	book := feed.NewBook()
	err = c.Run(ctx, func(msg []byte) {
		u, err := book.Apply(msg)
		if err != nil {
			slog.Warn("bad message", "err", err)
			return
		}
		slog.Debug("message", "type", u.Type, "body", string(msg))
		if len(u.Codes) > 0 {
			slog.Info("countries updated", "codes", u.Codes, "known", book.Len(), "replaced", u.Replaced)
		}
	})
	if err != nil {
		slog.Error("connection ended", "err", err)
		os.Exit(1)
	}
	slog.Info("datastream-client stopped", "countries", book.Codes())
}
