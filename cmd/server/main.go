package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/skolaris/be-school-fees/internal/client"
	"github.com/skolaris/be-school-fees/internal/config"
	"github.com/skolaris/be-school-fees/internal/database"
	"github.com/skolaris/be-school-fees/internal/handler"
	"github.com/skolaris/be-school-fees/internal/httpx"
	"github.com/skolaris/be-school-fees/internal/logger"
	"github.com/skolaris/be-school-fees/internal/repository"
	"github.com/skolaris/be-school-fees/internal/service"
	"github.com/skolaris/be-school-fees/internal/storage"
)

func main() {
	// A missing .env file is fine; the environment itself is authoritative.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting school fees service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := database.Config{
		DSN:        cfg.Database.DSN(),
		MigrateURL: cfg.Database.MigrateURL(),
		MaxConns:   cfg.Database.MaxConns,
		MinConns:   cfg.Database.MinConns,
	}

	if err := database.Migrate(dbCfg, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	db, err := database.New(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	files, err := storage.NewLocalStore(cfg.Storage.EvidenceDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize evidence storage")
	}

	notifier, err := client.NewNotifier(cfg.NATS.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer notifier.Close()

	// Repositories
	feeRepo := repository.NewFeeRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	proofRepo := repository.NewProofRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Services
	workflowSvc := service.NewWorkflowService(feeRepo, subRepo, paymentRepo, auditRepo, notifier, log)
	evidenceSvc := service.NewEvidenceService(subRepo, proofRepo, files, workflowSvc, auditRepo, notifier, log, cfg.Storage.MaxUploadBytes)
	paymentSvc := service.NewPaymentService(feeRepo, subRepo, paymentRepo, log)
	reconSvc := service.NewReconciliationService(feeRepo, subRepo, paymentRepo, log)

	httpHandler := handler.NewHTTPHandler(workflowSvc, evidenceSvc, paymentSvc, reconSvc, log, cfg.Storage.MaxUploadBytes)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(httpx.RequestLogger(log))
	r.Use(httpx.Recovery(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-School-ID", "X-Actor-ID"},
	}))
	r.Use(chimiddleware.Timeout(cfg.Server.WriteTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	r.Route("/api/v1", httpHandler.Routes)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
