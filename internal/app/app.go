// Package app wires configuration into the stores and services shared by the
// server and cronjob processes.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"membership-backend/internal/config"
	"membership-backend/internal/domain"
	"membership-backend/internal/idempotency"
	"membership-backend/internal/logger"
	"membership-backend/internal/message"
	"membership-backend/internal/metrics"
	"membership-backend/internal/repository"
	"membership-backend/internal/repository/memory"
	"membership-backend/internal/repository/postgres"
	"membership-backend/internal/security"
	"membership-backend/internal/service"
	"membership-backend/internal/storage"
)

// Repositories is the set of storage ports, backed by postgres or memory.
type Repositories struct {
	Requests      repository.MembershipRequestRepository
	Members       repository.MemberRepository
	Subscriptions repository.SubscriptionRepository
	Notifications repository.NotificationRepository
	References    repository.ReferenceRepository
	Types         repository.MembershipTypeRepository
	Geo           repository.GeoRepository
}

type App struct {
	Config        *config.Config
	Repos         Repositories
	Lifecycle     service.RequestLifecycle
	Notifications service.NotificationService
	Blobs         storage.BlobStore
	Limiter       security.AttemptLimiter
	Idempotency   idempotency.Store
	Tokens        security.TokenManager
	Metrics       *metrics.Metrics
	Registry      *prometheus.Registry

	emailQueue *service.EmailQueue
	closers    []func() error
}

// New builds every dependency described by cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Tokens: security.NewTokenManager(cfg.JWT.Secret)}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	blobs, err := storage.NewLocalBlobStore(cfg.Storage.BaseURL, cfg.Storage.UploadDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Blobs = blobs

	composer, err := message.NewComposer()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load message templates: %w", err)
	}

	wf := cfg.Workflow
	orchestrator := service.NewApprovalOrchestrator(
		a.Repos.Members,
		a.Repos.Subscriptions,
		a.Repos.References,
		a.Repos.Notifications,
		a.Repos.Requests,
		a.Blobs,
		composer,
		a.Metrics,
		wf.MemberNumberPrefix,
		wf.ArtifactTimeout,
	)
	a.Lifecycle = service.NewRequestLifecycle(service.LifecycleDeps{
		Requests:      a.Repos.Requests,
		Types:         a.Repos.Types,
		Members:       a.Repos.Members,
		Subscriptions: a.Repos.Subscriptions,
		Ledger:        service.NewPaymentLedger(wf.MembershipFee),
		Orchestrator:  orchestrator,
		Codes:         security.NewSecurityCodeIssuer(wf.SecurityCodeTTL),
		Limiter:       a.Limiter,
		Composer:      composer,
		Blobs:         a.Blobs,
		Emails:        a.emailDispatcher(ctx),
		Metrics:       a.Metrics,
	}, service.LifecycleSettings{
		ClaimTTL:        wf.ApprovalClaimTTL,
		MatriculePrefix: wf.MatriculePrefix,
		Region:          wf.DefaultRegion,
		PortalURL:       wf.PortalBaseURL,
	})
	a.Notifications = service.NewNotificationService(a.Repos.Notifications)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	if cfg.Database.Type == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		store := memory.NewStore()
		types := memory.NewMembershipTypeRepository(domain.MembershipType{
			ID:             "standard",
			Name:           "Membre actif",
			Fee:            cfg.Workflow.MembershipFee,
			DurationMonths: 12,
			Active:         true,
		})
		a.Repos = Repositories{
			Requests:      store.MembershipRequestRepository,
			Members:       store.MemberRepository,
			Subscriptions: store.SubscriptionRepository,
			Notifications: store.NotificationRepository,
			References:    store.ReferenceRepository,
			Types:         types,
			Geo:           store.GeoRepository,
		}
		return nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	store := postgres.NewStore(db)
	if cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}
	a.Repos = Repositories{
		Requests:      store.MembershipRequestRepository,
		Members:       store.MemberRepository,
		Subscriptions: store.SubscriptionRepository,
		Notifications: store.NotificationRepository,
		References:    store.ReferenceRepository,
		Types:         store.MembershipTypeRepository,
		Geo:           store.GeoRepository,
	}
	return nil
}

// openCache picks the redis-backed limiter and idempotency store when redis
// is enabled so several server instances share them.
func (a *App) openCache(ctx context.Context) error {
	sec := a.Config.Security
	if !a.Config.Redis.Enabled {
		a.Limiter = security.NewMemoryLimiter(sec.MaxCodeAttempts, sec.CodeAttemptWindow)
		a.Idempotency = idempotency.NewMemoryStore(sec.IdempotencyTTL)
		return nil
	}

	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	if a.Config.Redis.PoolSize > 0 {
		opts.PoolSize = a.Config.Redis.PoolSize
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)

	logger.ExternalServiceCall("redis", "Ping", "addr", opts.Addr)
	err = client.Ping(ctx).Err()
	logger.ExternalServiceResult("redis", "Ping", err)
	if err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	a.Limiter = security.NewRedisLimiter(client, sec.MaxCodeAttempts, sec.CodeAttemptWindow)
	a.Idempotency = idempotency.NewRedisStore(client, sec.IdempotencyTTL)
	return nil
}

func (a *App) emailDispatcher(ctx context.Context) service.EmailDispatcher {
	cfg := a.Config
	var sender service.EmailService
	switch cfg.Email.Provider {
	case "smtp":
		sender = service.NewSMTPEmailService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	case "sendgrid":
		sender = service.NewSendGridEmailService(cfg.Email.SendGridAPIKey, cfg.SMTP.From, cfg.Email.FromName)
	default:
		logger.Info("Outbound email disabled", "provider", cfg.Email.Provider)
		return service.NopEmailDispatcher{}
	}

	logger.Info("Outbound email enabled", "provider", cfg.Email.Provider, "workers", cfg.Email.Workers)
	a.emailQueue = service.NewEmailQueue(sender, cfg.Email.QueueSize, cfg.Email.Workers)
	a.emailQueue.Start(ctx)
	return a.emailQueue
}

// Close drains the email queue and closes connections in reverse order.
func (a *App) Close() {
	if a.emailQueue != nil {
		a.emailQueue.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
