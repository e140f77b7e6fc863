// Command sugarbuddy serves the companion API and the dashboard from one
// process.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sugarbuddy/api"
	"github.com/hazyhaar/sugarbuddy/config"
	"github.com/hazyhaar/sugarbuddy/dashboard"
	"github.com/hazyhaar/sugarbuddy/dbopen"
	"github.com/hazyhaar/sugarbuddy/history"
	"github.com/hazyhaar/sugarbuddy/observability"
	"github.com/hazyhaar/sugarbuddy/responder"
	"github.com/hazyhaar/sugarbuddy/shield"
	"github.com/hazyhaar/sugarbuddy/statehub"
	"github.com/hazyhaar/sugarbuddy/userdata"
)

func main() {
	configPath := flag.String("config", os.Getenv("SUGARBUDDY_CONFIG"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Chat history DB.
	hist, histDB, err := history.Open(cfg.HistoryDB)
	if err != nil {
		slog.Error("history db", "error", err, "path", cfg.HistoryDB)
		os.Exit(1)
	}
	defer histDB.Close()

	// Metrics DB, separate from history. Empty path disables metrics.
	var metrics *observability.Metrics
	if cfg.MetricsDB != "" {
		metricsDB, err := dbopen.Open(cfg.MetricsDB, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
		if err != nil {
			slog.Error("metrics db", "error", err, "path", cfg.MetricsDB)
			os.Exit(1)
		}
		defer metricsDB.Close()
		metrics = observability.New(metricsDB, 100, 5*time.Second, logger)
		defer metrics.Close()
	}

	users := userdata.New(cfg.DataDir)
	hub := statehub.New(statehub.Config{Snapshot: api.StateSnapshot(users), Logger: logger})
	defer hub.Close()

	reply, err := responder.New(cfg.Responder)
	if err != nil {
		slog.Error("responder", "error", err)
		os.Exit(1)
	}

	limiter := shield.NewRateLimiter(cfg.RateLimit.ChatPerMinute, time.Minute)
	limiter.StartGC(ctx.Done(), 5*time.Minute)

	companion := &api.Server{
		Users:         users,
		History:       hist,
		Hub:           hub,
		Responder:     reply,
		DefaultUserID: cfg.DefaultUserID,
		ChatLimiter:   limiter,
		Metrics:       metrics,
	}

	backend := cfg.BackendURL
	if backend == "" {
		backend = selfURL(cfg.Listen)
	}
	dash := dashboard.New(dashboard.Config{
		BackendURL:     backend,
		DefaultUserID:  cfg.DefaultUserID,
		FallbackNotice: cfg.Chat.FallbackNotice,
		MCP:            cfg.MCP.Enabled,
		Metrics:        metrics,
		Logger:         logger,
	})
	defer dash.Close()

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	companion.Routes(r)
	dash.Routes(r)

	// HTTP server. No write timeout: chat and state streams stay open.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "listen", cfg.Listen, "backend", backend,
			"responder", cfg.Responder.Kind, "mcp", cfg.MCP.Enabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	dash.Close()
	hub.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// selfURL turns a listen address into a loopback base URL.
func selfURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://127.0.0.1:8000"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
