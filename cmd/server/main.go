// Shanti - Guided Wellbeing Session Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/tmehta/shanti/internal/api"
	"github.com/tmehta/shanti/internal/config"
	"github.com/tmehta/shanti/internal/conversation"
	"github.com/tmehta/shanti/internal/convlog"
	"github.com/tmehta/shanti/internal/feedback"
	"github.com/tmehta/shanti/internal/gateway"
	"github.com/tmehta/shanti/internal/identity"
	"github.com/tmehta/shanti/internal/middleware"
	"github.com/tmehta/shanti/internal/reaper"
	"github.com/tmehta/shanti/internal/session"
	"github.com/tmehta/shanti/internal/therapy"
	"github.com/tmehta/shanti/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Conversation diagnostics.
	diag, err := convlog.New(convlog.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := diag.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Conversational-response service. Without an endpoint every session runs
	// on the local fallback prompts.
	var responder conversation.Responder
	if cfg.TherapyServiceURL != "" {
		responder, err = therapy.NewHTTPClient(therapy.ClientConfig{
			Endpoint: cfg.TherapyServiceURL,
			Timeout:  cfg.TherapyTimeout,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize therapy client", "error", err)
			os.Exit(1)
		}
		slog.Info("Therapy service configured", "endpoint", cfg.TherapyServiceURL)
	} else {
		responder = therapy.Unconfigured{}
		slog.Warn("THERAPY_SERVICE_URL not set, sessions will use local prompts only")
	}

	fb := feedback.New(cfg.FeedbackSinkURL, cfg.FeedbackTimeout, logger)
	if fb.Enabled() {
		slog.Info("Feedback sink configured", "endpoint", cfg.FeedbackSinkURL)
	} else {
		slog.Info("Feedback sink not configured, submissions will be dropped")
	}

	hub := gateway.NewHub()
	wsHandler := gateway.NewHandler(gateway.HandlerConfig{
		Hub:           hub,
		Responder:     responder,
		Feedback:      fb,
		Diag:          diag,
		Timings:       session.DefaultTimings(),
		AudioTrackURL: cfg.AudioTrackURL,
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		Logger:        logger,
	})
	apiHandler := api.NewHandler(hub, cfg.TherapyServiceURL != "", fb.Enabled())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	r.Get("/api/health", apiHandler.Health)

	// WebSocket endpoint.
	r.Get("/ws/session", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket sessions are long-lived
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaper.New(nil, hub, cfg.SessionTTL, 0, logger).Start(ctx)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
