package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"adledger/internal/infrastructure"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, cleanup, err := infrastructure.Bootstrap(ctx)
	if err != nil {
		log.Fatalf("Bootstrap error: %v", err)
	}
	defer cleanup()

	slog.Info("ad spend billing engine is running")
	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Engine stopped: %v", err)
	}
}
