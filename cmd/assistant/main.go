package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nsfas-assistant/internal/intents"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var cfgErr *intents.ConfigError
		if errors.As(err, &cfgErr) {
			slog.Error("invalid pattern source", "source", cfgErr.Source, "err", cfgErr.Err)
		} else {
			slog.Error("assistant failed", "err", err)
		}
		cancel()
		os.Exit(1)
	}
}
