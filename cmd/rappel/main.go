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
	"github.com/go-chi/cors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/rappel/dbopen"
	"github.com/hazyhaar/rappel/observability"
	"github.com/hazyhaar/rappel/rappel"
	"github.com/hazyhaar/rappel/shield"
)

func main() {
	// Config: defaults, optional YAML file, then environment overrides.
	cfg := rappel.DefaultConfig()
	if len(os.Args) > 1 {
		loaded, err := rappel.LoadConfig(os.Args[1])
		if err != nil {
			slog.Error("load config", "path", os.Args[1], "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.FromEnv()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
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

	// Observability DB, separate from the todo data file.
	obsDB, err := dbopen.Open(cfg.ObsDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()
	if err := observability.Init(obsDB); err != nil {
		slog.Error("observability init", "error", err)
		os.Exit(1)
	}
	events := observability.NewEventLogger(obsDB)

	heartbeat := observability.NewHeartbeatWriter(obsDB, "rappel", 15*time.Second)
	heartbeat.Start(ctx)
	defer heartbeat.Stop()

	// Retention cleanup, once at startup then daily.
	go func() {
		retention := observability.RetentionConfig{
			HTTPLogsDays:   7,
			EventLogsDays:  30,
			HeartbeatsDays: 7,
		}
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			if err := observability.Cleanup(ctx, obsDB, retention); err != nil {
				slog.Warn("retention cleanup", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// Todo store.
	store, err := rappel.NewStore(cfg.StoreConfig())
	if err != nil {
		slog.Error("todo store", "error", err)
		os.Exit(1)
	}
	svc := rappel.New(store, rappel.WithEvents(events))

	// Optional MCP over stdio.
	if os.Getenv("MCP_TRANSPORT") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "rappel",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("mcp stdio", "error", err)
			}
		}()
	}

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(observability.RequestLog(obsDB))
	r.Mount("/", svc.Routes())

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "mode", cfg.StorageMode)
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
