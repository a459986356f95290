package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/upb/auth-gateway/services"
)

// Authentication backend names accepted in AUTH_SERVICE
const (
	AuthServiceFirebase = "firebase"
	AuthServiceLocal    = "local"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	AuthService   string
	Firebase      FirebaseConfig
	Local         LocalAuthConfig
	Database      *DatabaseConfig // nil when no database is configured; audit is disabled then
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
	Version       string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
}

// FirebaseConfig holds the Firebase project and service-account settings
type FirebaseConfig struct {
	APIKey            string
	AuthDomain        string
	ProjectID         string
	PrivateKeyID      string
	PrivateKey        string
	ClientEmail       string
	ClientID          string
	ClientX509CertURL string

	IdentityToolkitURL string // override for the emulator
	JWKSURL            string
	HTTPTimeout        time.Duration
	JWKSCacheTTL       time.Duration
}

// LocalAuthConfig holds settings for the in-memory development backend
type LocalAuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuditConfig sizes the asynchronous audit writer
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
	InitSchema  bool          // create the auth_events table at start-up
	Retention   time.Duration // zero keeps events forever
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Version:     getEnv("APP_VERSION", "dev"),
		AuthService: strings.ToLower(strings.TrimSpace(getEnv("AUTH_SERVICE", AuthServiceFirebase))),
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               getPort(),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:     getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
		},
		Firebase: FirebaseConfig{
			APIKey:             getEnv("FIREBASE_API_KEY", ""),
			AuthDomain:         getEnv("FIREBASE_AUTH_DOMAIN", ""),
			ProjectID:          getEnv("FIREBASE_PROJECT_ID", ""),
			PrivateKeyID:       getEnv("FIREBASE_PRIVATE_KEY_ID", ""),
			PrivateKey:         getEnv("FIREBASE_PRIVATE_KEY", ""),
			ClientEmail:        getEnv("FIREBASE_CLIENT_EMAIL", ""),
			ClientID:           getEnv("FIREBASE_CLIENT_ID", ""),
			ClientX509CertURL:  getEnv("FIREBASE_CLIENT_X509_CERT_URL", ""),
			IdentityToolkitURL: getEnv("FIREBASE_IDENTITY_TOOLKIT_URL", ""),
			JWKSURL:            getEnv("FIREBASE_JWKS_URL", ""),
			HTTPTimeout:        getEnvAsDuration("FIREBASE_HTTP_TIMEOUT", 10*time.Second),
			JWKSCacheTTL:       getEnvAsDuration("FIREBASE_JWKS_CACHE_TTL", time.Hour),
		},
		Local: LocalAuthConfig{
			Secret:   getEnv("LOCAL_AUTH_SECRET", ""),
			TokenTTL: getEnvAsDuration("LOCAL_AUTH_TOKEN_TTL", time.Hour),
		},
		Database: loadDatabaseConfig(),
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKER_COUNT", 2),
			InitSchema:  getEnvAsBool("AUDIT_INIT_SCHEMA", true),
			Retention:   getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set.
// Backend selection problems are reported as configuration errors.
func (c *Config) Validate() error {
	switch c.AuthService {
	case AuthServiceFirebase:
		if c.IsProduction() {
			if err := c.Firebase.validate(); err != nil {
				return err
			}
		}
	case AuthServiceLocal:
		if c.IsProduction() {
			return services.WrapConfiguration("invalid AUTH_SERVICE",
				fmt.Errorf("the %q backend is not allowed in production", AuthServiceLocal))
		}
		if c.Local.Secret == "" {
			return services.WrapConfiguration("invalid local backend configuration",
				fmt.Errorf("LOCAL_AUTH_SECRET is required when AUTH_SERVICE=%s", AuthServiceLocal))
		}
	case "":
		return services.WrapConfiguration("invalid AUTH_SERVICE", fmt.Errorf("AUTH_SERVICE is required"))
	default:
		return services.WrapConfiguration("invalid AUTH_SERVICE",
			fmt.Errorf("unknown authentication service %q", c.AuthService))
	}

	// Database validation (DATABASE_URL or DB_* vars), only when one is configured
	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

func (f *FirebaseConfig) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"FIREBASE_API_KEY", f.APIKey},
		{"FIREBASE_PROJECT_ID", f.ProjectID},
		{"FIREBASE_PRIVATE_KEY", f.PrivateKey},
		{"FIREBASE_CLIENT_EMAIL", f.ClientEmail},
	}

	var missing []string
	for _, field := range required {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return services.WrapConfiguration("invalid firebase configuration",
			fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// AuditEnabled reports whether auth events are persisted
func (c *Config) AuditEnabled() bool {
	return c.Database != nil
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", ""),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "auth_gateway"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
