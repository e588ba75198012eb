package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatterserver/internal/config"
	"chatterserver/internal/directory"
	"chatterserver/internal/messaging"
	"chatterserver/internal/server"
	"chatterserver/internal/social"
	"chatterserver/internal/store"
	"chatterserver/internal/store/postgres"
	"chatterserver/internal/store/snapfile"
	"chatterserver/internal/store/sqlite"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatterserver",
		Short: "Messaging server with friends, blocking and presence",
		Long: `chatterserver is a multi-user messaging server speaking a
newline-framed text protocol over TCP (and optionally WebSocket).
Clients authenticate, manage friend/block relationships and exchange
messages; state is snapshotted to a JSON file, SQLite or PostgreSQL.

Configuration is taken from APP_* environment variables.`,
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the messaging server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
}

func run(cfg config.Config) error {
	logger := newLogger(cfg)

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	dir := directory.New()
	graph := social.New()
	messages := messaging.New(graph)

	// Restore completes before any connection is accepted, so a save can
	// never race it.
	snap, err := backend.Load(context.Background())
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := dir.Restore(snap.Users); err != nil {
		return fmt.Errorf("restore users: %w", err)
	}
	graph.Restore(snap.Relations)
	messages.Restore(snap.Messages)
	logger.Info("state restored", "users", len(snap.Users), "messages", len(snap.Messages))

	saver := &store.Saver{
		Backend:   backend,
		Directory: dir,
		Graph:     graph,
		Messages:  messages,
		Logger:    logger,
	}

	srv := server.New(server.Deps{
		Logger:    logger,
		Directory: dir,
		Graph:     graph,
		Messages:  messages,
		Saver:     saver,
	})

	errCh := make(chan error, 2)
	go func() {
		logger.Info("tcp listener starting", "env", cfg.Env, "addr", cfg.Addr)
		errCh <- srv.ListenAndServe(cfg.Addr)
	}()

	var wsSrv *http.Server
	if cfg.WSAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", srv.WSHandler())
		wsSrv = &http.Server{
			Addr:              cfg.WSAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("websocket listener starting", "addr", cfg.WSAddr)
			if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if wsSrv != nil {
			_ = wsSrv.Shutdown(ctx)
		}
		return srv.Shutdown(ctx)
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
		return err
	}
}

func openBackend(cfg config.Config) (store.Store, error) {
	switch {
	case cfg.DBDSN != "":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return postgres.Open(ctx, cfg.DBDSN)
	case cfg.DBPath != "":
		return sqlite.Open(cfg.DBPath)
	default:
		return snapfile.New(cfg.SnapshotPath), nil
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
