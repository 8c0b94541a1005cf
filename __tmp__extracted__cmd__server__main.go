// Command server runs the collaboration hub: HTTP API, WebSocket
// gateway, and the execution worker pool, all in one process (spec
// §5: a single coordinating process, not a replicated cluster).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collabhub/server/internal/bootstrap"
	"github.com/collabhub/server/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		app.Logger.Error().Err(err).Msg("server exited")
		os.Exit(1)
	case <-sigCh:
		app.Logger.Info().Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	app.Shutdown(shutdownCtx)
}


