// CLAUDE:SUMMARY CLI entry point for mirador: brand-mention ingestion daemon with HTTP API and optional MCP stdio mode.
// Command mirador runs the brand-mention ingestion service.
//
// Usage:
//
//	mirador -config mirador.yaml            # scheduled collection + HTTP API
//	mirador -config mirador.yaml -mcp       # scheduled collection + MCP over stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/mirador"
	"github.com/hazyhaar/mirador/internal/dbopen"
	"github.com/hazyhaar/mirador/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	configPath := flag.String("config", "mirador.yaml", "path to mirador.yaml config file")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of the HTTP API")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *mcpMode); err != nil {
		logger.Error("mirador: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, mcpMode bool) error {
	cfg, err := mirador.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := dbopen.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := store.ApplySchema(db); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	svc, err := mirador.New(cfg, db, logger)
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	defer svc.Close()

	svc.Start(ctx)

	if mcpMode {
		return runMCP(ctx, svc)
	}
	return runHTTP(ctx, logger, cfg.ListenAddr, svc)
}

// runMCP serves the MCP tools over stdio. Scheduled collection keeps running
// in the background; logs go to stderr so stdout stays a clean JSON-RPC pipe.
func runMCP(ctx context.Context, svc *mirador.Service) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "mirador",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(srv)

	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	svc.Wait()
	return nil
}

func runHTTP(ctx context.Context, logger *slog.Logger, addr string, svc *mirador.Service) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mirador.NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "sources", svc.SourceNames())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	svc.Wait()
	logger.Info("server stopped")
	return nil
}
