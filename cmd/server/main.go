package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "membership-backend/internal/api/http"
	"membership-backend/internal/app"
	"membership-backend/internal/config"
	"membership-backend/internal/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting membership backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Database configuration", "type", cfg.Database.Type, "host", cfg.Database.Host, "database", cfg.Database.Database)
	logger.Info("Workflow configuration",
		"membership_fee", cfg.Workflow.MembershipFee,
		"currency", cfg.Workflow.Currency,
		"security_code_ttl", cfg.Workflow.SecurityCodeTTL,
		"approval_claim_ttl", cfg.Workflow.ApprovalClaimTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize stores and services
	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	// Set up HTTP server
	server := httpapi.NewServer(httpapi.Deps{
		Lifecycle:            application.Lifecycle,
		Notifications:        application.Notifications,
		Geo:                  application.Repos.Geo,
		Blobs:                application.Blobs,
		Tokens:               application.Tokens,
		Idempotency:          application.Idempotency,
		Metrics:              application.Metrics,
		Gatherer:             application.Registry,
		CorrectionSessionTTL: cfg.Security.CorrectionSessionTTL,
		MaxUploadSize:        cfg.Storage.MaxFileSize << 20,
	})
	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}
