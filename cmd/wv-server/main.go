package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"wikivault/pkg/app"
	"wikivault/pkg/config"
	"wikivault/pkg/ipc"
	"wikivault/pkg/logging"
	"wikivault/pkg/server"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is ./.wv/config.yaml or $HOME/.wv/config.yaml)")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	cfg, err := config.FromViper()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		log.Fatalf("❌ %v", err)
	}
	fmt.Println("👋 Server stopped.")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Init Core Application (仓库 + 索引)
	application, err := app.NewApp(ctx, cfg, logger, app.Options{InstallHook: true})
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			logger.Error("close failed", slog.Any("error", err))
		}
	}()

	index, err := application.OpenIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to open search index: %w", err)
	}
	svc := application.NewService(index)
	fmt.Printf("✅ %s initialized (repo %s)\n", cfg.Wiki.Name, cfg.Repo.Path)

	// 3. Setup Push Listener
	listener, err := ipc.Listen(cfg.IPC.Socket, cfg.IPC.Timeout, logger)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.IPC.Socket, err)
	}

	// 4. Setup HTTP Server
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.New(svc, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Printf("🔔 Push listener on %s\n", listener.Addr())
		return listener.Serve(gctx, svc.HandlePush)
	})

	g.Go(func() error {
		fmt.Printf("🚀 HTTP server listening on %s...\n", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 5. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\n⚠️  Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
