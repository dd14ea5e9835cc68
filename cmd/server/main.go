// inspectord - vehicle inspection analysis server
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dcastano/inspectord/internal/api"
	"github.com/dcastano/inspectord/internal/bus"
	"github.com/dcastano/inspectord/internal/config"
	"github.com/dcastano/inspectord/internal/detect"
	"github.com/dcastano/inspectord/internal/inspection"
	"github.com/dcastano/inspectord/internal/middleware"
	"github.com/dcastano/inspectord/internal/registry"
	"github.com/dcastano/inspectord/internal/rules"
	"github.com/dcastano/inspectord/internal/store"
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

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	engine, err := rules.NewEngine(cfg.RulesPath)
	if err != nil {
		slog.Error("Failed to load rules", "error", err)
		os.Exit(1)
	}
	fraudRules, reviewRules := engine.Counts()
	slog.Info("Rule engine ready", "fraud_rules", fraudRules, "review_rules", reviewRules)

	filter, err := detect.NewCandidateFilter(cfg.OCRPlateRegex, cfg.OCRVINRegex)
	if err != nil {
		slog.Error("Failed to compile OCR patterns", "error", err)
		os.Exit(1)
	}

	detectors := detect.Detectors{
		Damage: detect.NoopModels{},
		Parts:  detect.NoopModels{},
		OCR:    detect.NoopModels{},
		Tamper: detect.NoopModels{},
		Color:  &detect.LocalColorExtractor{},
		GPS:    &detect.ExifGPSExtractor{},
	}
	if cfg.DetectorURL != "" {
		client := detect.NewInferenceClient(cfg.DetectorURL)
		detectors.Damage = client
		detectors.Parts = client
		detectors.OCR = client
		detectors.Tamper = client
		slog.Info("Using remote model server", "url", cfg.DetectorURL)
	} else {
		slog.Info("No model server configured, model-backed detectors disabled")
	}

	// Initialize services.
	eventBus := bus.New()
	reg := registry.New(repo, time.Duration(cfg.RegistryCacheTTLMinutes)*time.Minute)
	analyzer := inspection.NewAnalyzer(repo, reg, engine, eventBus, cfg, detectors, filter)
	finalizer := inspection.NewFinalizer(repo, reg, eventBus, cfg)

	// Initialize handlers.
	handler := api.NewHandler(repo, analyzer, finalizer, reg, engine, eventBus, cfg)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	handler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/inspection", handler.Events)

	// Metrics.
	r.Handle("/metrics", promhttp.Handler())

	// Create server. Analyze uploads can take a while against a cold model
	// server, so the write timeout is generous.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
