package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/auth-gateway/auth"
	"github.com/upb/auth-gateway/config"
	"github.com/upb/auth-gateway/firebase"
	"github.com/upb/auth-gateway/handlers"
	"github.com/upb/auth-gateway/local"
	"github.com/upb/auth-gateway/middleware"
	"github.com/upb/auth-gateway/repositories/postgres"
	"github.com/upb/auth-gateway/services/audit"
	"go.uber.org/zap"
)

// auditStopTimeout bounds how long Close waits for queued auth events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Optional audit store; nil when no database is configured
	RepoFactory  *postgres.RepositoryFactory
	DB           *postgres.DB
	AuditService *audit.AuditService

	// Auth
	Selector       *auth.Selector
	Module         auth.Module
	AuthMiddleware *middleware.AuthMiddleware

	// HTTP handlers
	AuthHandler   *handlers.AuthHandler
	HealthHandler *handlers.HealthHandler
	StatusHandler *handlers.StatusHandler
}

// NewDependencies creates and wires up all application dependencies.
// The authentication backend is constructed exactly once here; a backend
// that cannot be built aborts start-up.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initAuth(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize authentication service: %w", err)
	}

	if cfg.AuditEnabled() {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := deps.initAudit(cfg); err != nil {
			_ = deps.RepoFactory.Close()
			return nil, fmt.Errorf("failed to initialize audit service: %w", err)
		}
	} else {
		logger.Warn("no database configured, auth events are not persisted")
	}

	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("auth_service", deps.Module.Name()),
		zap.Bool("audit_enabled", deps.AuditService != nil),
	)
	return deps, nil
}

// NewSelector registers every known backend and selects the one named in cfg
func NewSelector(cfg *config.Config, logger *zap.Logger) *auth.Selector {
	selector := auth.NewSelector(cfg.AuthService)

	selector.Register(firebase.Name, func(ctx context.Context) (auth.Module, error) {
		backend, err := firebase.New(ctx, firebase.Config{
			APIKey:             cfg.Firebase.APIKey,
			AuthDomain:         cfg.Firebase.AuthDomain,
			ProjectID:          cfg.Firebase.ProjectID,
			PrivateKeyID:       cfg.Firebase.PrivateKeyID,
			PrivateKey:         cfg.Firebase.PrivateKey,
			ClientEmail:        cfg.Firebase.ClientEmail,
			ClientID:           cfg.Firebase.ClientID,
			ClientX509CertURL:  cfg.Firebase.ClientX509CertURL,
			IdentityToolkitURL: cfg.Firebase.IdentityToolkitURL,
			JWKSURL:            cfg.Firebase.JWKSURL,
			HTTPTimeout:        cfg.Firebase.HTTPTimeout,
			JWKSCacheTTL:       cfg.Firebase.JWKSCacheTTL,
		}, logger)
		if err != nil {
			return nil, err
		}
		return backend, nil
	})

	selector.Register(local.Name, func(context.Context) (auth.Module, error) {
		backend, err := local.New(local.Config{
			Secret:   cfg.Local.Secret,
			TokenTTL: cfg.Local.TokenTTL,
		}, logger)
		if err != nil {
			return nil, err
		}
		return backend, nil
	})

	return selector
}

func (d *Dependencies) initAuth(ctx context.Context, cfg *config.Config) error {
	d.Selector = NewSelector(cfg, d.Logger)

	module, err := d.Selector.Module(ctx)
	if err != nil {
		return err
	}
	d.Module = module

	d.Logger.Info("authentication service selected",
		zap.String("auth_service", module.Name()),
		zap.Strings("available", d.Selector.Available()),
	)
	return nil
}

// initDatabase initializes the PostgreSQL connection backing the audit store
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	if cfg.Audit.InitSchema {
		if err := factory.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to initialize audit schema: %w", err)
		}
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

func (d *Dependencies) initAudit(cfg *config.Config) error {
	repos := d.RepoFactory.NewRepositories()

	service := audit.NewAuditService(repos.AuthEvents, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
		Retention:   cfg.Audit.Retention,
	})
	if err := service.Start(); err != nil {
		return err
	}

	d.AuditService = service
	return nil
}

// initHandlers builds the middleware and handlers. Optional collaborators
// are passed as nil interfaces when the audit store is disabled.
func (d *Dependencies) initHandlers(cfg *config.Config) {
	var (
		recorder auth.EventRecorder = auth.NopRecorder{}
		db       handlers.DatabaseChecker
		reporter handlers.AuditReporter
	)
	if d.AuditService != nil {
		recorder = d.AuditService
		reporter = d.AuditService
	}
	if d.DB != nil {
		db = d.DB
	}

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Module, recorder, d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(d.Module, recorder, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(db, d.Logger)
	d.StatusHandler = handlers.NewStatusHandler(cfg.Version, cfg.Environment, d.Module.Name(), reporter, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain queued auth events before the pool goes away
	if d.AuditService != nil {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.AuditService.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
		d.AuditService = nil
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
		d.DB = nil
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
