// Command domresolve runs the resolution service: the HTTP API on PORT
// and, when MCP_TRANSPORT=stdio, the MCP tool surface on stdin/stdout.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domresolve"
	"github.com/hazyhaar/domresolve/shield"
)

func main() {
	port := env("PORT", "8086")
	configPath := env("CONFIG", "")
	mcpTransport := env("MCP_TRANSPORT", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config.
	cfg := &domresolve.Config{}
	if configPath != "" {
		loaded, err := domresolve.LoadConfigFile(configPath)
		if err != nil {
			slog.Error("config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if dir := os.Getenv("SELECTOR_DIR"); dir != "" {
		cfg.Loader.BaseDir = dir
	}
	if dbPath := os.Getenv("OBSERVABILITY_DB"); dbPath != "" {
		cfg.Observability.DBPath = dbPath
	}

	session, err := domresolve.NewSession(cfg, domresolve.WithSessionLogger(logger))
	if err != nil {
		slog.Error("session", "error", err)
		os.Exit(1)
	}
	defer session.Close()
	session.Start(ctx)

	// Optional MCP surface on stdio. The HTTP API keeps running so
	// stats stay reachable while an agent drives the tools.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "domresolve",
			Version: "1.0.0",
		}, nil)
		session.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("mcp starting", "transport", "stdio")
			if err := mcpSrv.Run(ctx, &mcp.IOTransport{Reader: os.Stdin, Writer: os.Stdout}); err != nil && ctx.Err() == nil {
				slog.Error("mcp", "error", err)
			}
		}()
	}

	// HTTP router.
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	session.RegisterHTTP(r)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
