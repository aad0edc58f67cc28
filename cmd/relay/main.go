// Command relay runs the relay's HTTP control plane and WebSocket relay
// dispatcher as a single process (spec.md §4.11).
//
// Grounded on the teacher's cmd/main.go boot sequence (sequential component
// init with fail-fast logging, http.Server with hardened timeouts, a
// signal.Notify-driven graceful shutdown), adapted to spf13/cobra instead of
// a bare func main and to the relay's own component set.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamspace-dev/relay/internal/config"
	"github.com/streamspace-dev/relay/internal/httpapi"
	"github.com/streamspace-dev/relay/internal/invitestore"
	"github.com/streamspace-dev/relay/internal/logger"
	"github.com/streamspace-dev/relay/internal/registry"
	"github.com/streamspace-dev/relay/internal/relay"
	"github.com/streamspace-dev/relay/internal/sessionstore"
	"github.com/streamspace-dev/relay/internal/userstore"
)

// shutdownDrain is how long graceful shutdown waits for in-flight
// connections to close before forcing an exit (spec.md §4.11).
const shutdownDrain = 5 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "relay",
		Short: "Relay server: HTTP control plane + WebSocket dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	boot := logger.Boot()

	boot.Info().Str("path", cfg.UserStorePath).Msg("loading user store")
	users := userstore.New(cfg.UserStorePath)
	if err := users.Init(); err != nil {
		return fmt.Errorf("loading user store: %w", err)
	}

	sessions := sessionstore.New()
	sessions.StartSweeper()
	defer sessions.Stop()

	invites := invitestore.New()
	reg := registry.New()
	dispatcher := relay.New(reg, users, sessions, invites)

	bootTime := time.Now()
	server := httpapi.New(cfg, users, sessions, invites, reg, dispatcher, bootTime)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Router(),

		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		boot.Info().Int("port", cfg.Port).Msg("relay listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			boot.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	boot.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	reg.BroadcastAll(registry.Event{
		Name:    relay.EventServerShutdown,
		Payload: relay.ServerShutdownPayload{Message: "server is shutting down"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), shutdownDrain)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		boot.Warn().Err(err).Msg("http server did not drain cleanly within the shutdown window")
	}

	boot.Info().Msg("graceful shutdown complete")
	return nil
}
