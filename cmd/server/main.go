// Command server runs the LAN conferencing hub's coordination core:
// session registry, control channel, chat history, file transfer broker,
// audio mix engine, and video/screen fan-out.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lanhub/internal/config"
	"lanhub/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log := newLogger(cfg.LogFormat)

	sv, err := supervisor.New(cfg, log)
	if err != nil {
		log.Error("startup failed", slog.Any("err", err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sv.Run(ctx); err != nil {
		log.Error("fatal error", slog.Any("err", err))
		return 1
	}
	return 0
}

func newLogger(format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
