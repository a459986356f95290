package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/auth-gateway/config"
	"github.com/upb/auth-gateway/firebase"
	"github.com/upb/auth-gateway/local"
	"github.com/upb/auth-gateway/repositories/postgres"
	"github.com/upb/auth-gateway/services"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestNewDependencies(t *testing.T) {
	t.Run("local backend without database", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Verify infrastructure
		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.Logger)
		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.AuditService)

		// Verify auth wiring
		require.NotNil(t, deps.Module)
		assert.Equal(t, local.Name, deps.Module.Name())
		assert.Equal(t, local.Name, deps.Selector.Selected())
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.StatusHandler)

		// The selector hands back the instance built at start-up
		again, err := deps.Selector.Module(ctx)
		require.NoError(t, err)
		assert.Same(t, deps.Module, again)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AuthService = "cognito"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.True(t, services.IsConfigurationError(err))
		assert.Contains(t, err.Error(), "failed to initialize authentication service")
	})

	t.Run("firebase without credentials", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AuthService = config.AuthServiceFirebase

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.True(t, services.IsConfigurationError(err))
		assert.Contains(t, err.Error(), "FIREBASE_API_KEY is required")
	})

	t.Run("local backend without secret", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Local.Secret = ""

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.True(t, services.IsConfigurationError(err))
	})

	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Database = testDatabaseConfig()
		cfg.Database.Host = "invalid-host-that-does-not-exist"
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})

	t.Run("with audit database", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Database = testDatabaseConfig()
		logger := zaptest.NewLogger(t)

		// Skip if database not available
		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.NotNil(t, deps.DB)
		require.NotNil(t, deps.AuditService)
		assert.True(t, deps.AuditService.GetStats().Started)

		assert.NoError(t, deps.Close(ctx))
	})
}

func TestNewSelector(t *testing.T) {
	cfg := testConfig(t)

	selector := NewSelector(cfg, zap.NewNop())

	assert.Equal(t, []string{firebase.Name, local.Name}, selector.Available())
	assert.Equal(t, local.Name, selector.Selected())
}

func TestDependenciesClose(t *testing.T) {
	t.Run("graceful shutdown", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Close should succeed
		err = deps.Close(ctx)
		assert.NoError(t, err)

		// Second close is a no-op
		err = deps.Close(ctx)
		assert.NoError(t, err)
	})
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Version:     "test",
		AuthService: config.AuthServiceLocal,
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Local: config.LocalAuthConfig{
			Secret:   "test-secret",
			TokenTTL: time.Hour,
		},
		Audit: config.AuditConfig{
			BufferSize:  10,
			WorkerCount: 1,
			InitSchema:  true,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}

func testDatabaseConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "auth",
		Password:        "auth",
		Database:        "auth_test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func isDatabaseAvailable(t *testing.T, cfg *config.Config) bool {
	t.Helper()
	factory, err := postgres.NewRepositoryFactory(cfg.Database, zap.NewNop())
	if err != nil {
		return false
	}
	defer factory.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return factory.GetDB().HealthCheck(ctx) == nil
}
