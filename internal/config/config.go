package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server       ServerConfig
	App          AppConfig
	Cache        CacheConfig
	Store        StoreConfig
	EventLog     EventLogConfig
	Gateway      GatewayConfig
	Payments     PaymentsConfig
	Reservations ReservationsConfig
	Reconcile    ReconcileConfig
	Notify       NotifyConfig
	Security     SecurityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  string        `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"gameshop-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type      string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	StatusTTL time.Duration `envconfig:"CACHE_STATUS_TTL" default:"1m"`

	RedisHost      string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort      int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"gameshop"`
}

// StoreConfig selects the inventory store.
type StoreConfig struct {
	Driver string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite, postgres, mysql or memory
	Path   string `envconfig:"DB_PATH" default:"./data/gameshop.db"`

	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"0"`
	Name     string `envconfig:"DB_NAME" default:"gameshop"`
	User     string `envconfig:"DB_USER" default:""`
	Password string `envconfig:"DB_PASS" default:""`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// EventLogConfig selects where gateway callbacks are audited.
type EventLogConfig struct {
	Type            string `envconfig:"EVENTLOG_TYPE" default:"sql"` // sql, mongodb or memory
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"gameshop"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"gateway_events"`
}

// GatewayConfig holds payment gateway settings.
type GatewayConfig struct {
	Provider      string        `envconfig:"GATEWAY_PROVIDER" default:"sandbox"` // sandbox or sepay
	AccountNumber string        `envconfig:"SEPAY_ACCOUNT_NUMBER" default:""`
	BankCode      string        `envconfig:"SEPAY_BANK_CODE" default:""`
	APIToken      string        `envconfig:"SEPAY_API_TOKEN" default:""`
	WebhookKey    string        `envconfig:"SEPAY_WEBHOOK_KEY" default:""`
	QRBaseURL     string        `envconfig:"SEPAY_QR_BASE_URL" default:""`
	APIBaseURL    string        `envconfig:"SEPAY_API_BASE_URL" default:""`
	SandboxKey    string        `envconfig:"SANDBOX_CALLBACK_KEY" default:""`
	QRTTL         time.Duration `envconfig:"GATEWAY_QR_TTL" default:"15m"`
	LookupTimeout time.Duration `envconfig:"GATEWAY_LOOKUP_TIMEOUT" default:"10s"`
}

// PaymentsConfig holds payment attempt settings.
type PaymentsConfig struct {
	ReferencePrefix string        `envconfig:"PAYMENT_REFERENCE_PREFIX" default:"GS"`
	LookupCacheTTL  time.Duration `envconfig:"PAYMENT_LOOKUP_CACHE_TTL" default:"5s"`
	ExpiryGrace     time.Duration `envconfig:"PAYMENT_EXPIRY_GRACE" default:"2m"`
}

// ReservationsConfig holds blind box reservation settings.
type ReservationsConfig struct {
	TTL           time.Duration `envconfig:"RESERVATION_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"RESERVATION_SWEEP_INTERVAL" default:"1m"`
	SweepBatch    int           `envconfig:"RESERVATION_SWEEP_BATCH" default:"100"`
}

// ReconcileConfig holds the background reconciliation settings.
type ReconcileConfig struct {
	Interval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"30s"`
	Batch    int           `envconfig:"RECONCILE_BATCH" default:"100"`
}

// NotifyConfig holds delivery notification settings. An empty URL logs
// deliveries instead of posting them.
type NotifyConfig struct {
	WebhookURL string        `envconfig:"NOTIFY_WEBHOOK_URL" default:""`
	Timeout    time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
	MaxElapsed time.Duration `envconfig:"NOTIFY_MAX_ELAPSED" default:"1m"`
}

// SecurityConfig holds secrets and keys.
type SecurityConfig struct {
	CredentialsSecret string        `envconfig:"CREDENTIALS_SECRET" required:"true"`
	APIKeys           string        `envconfig:"API_KEYS" default:""`
	LoginKey          string        `envconfig:"LOGIN_KEY" default:""` // Admin API login key
	SessionTTL        time.Duration `envconfig:"SESSION_TTL" default:"24h"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Origins returns the allowed CORS origins.
func (s *ServerConfig) Origins() []string {
	return splitList(s.AllowedOrigins)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, port, s.Name, s.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		s.User, s.Password, s.Host, port, s.Name)
}

// Keys returns the API keys allowed to mint buyer sessions.
func (s *SecurityConfig) Keys() []string {
	return splitList(s.APIKeys)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	if c.Security.CredentialsSecret == "" {
		return fmt.Errorf("CREDENTIALS_SECRET is required")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "postgresql", "mysql":
	case "memory":
		if c.App.IsProduction() {
			return fmt.Errorf("memory store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Store.Driver)
	}
	switch c.Gateway.Provider {
	case "sandbox":
		if c.App.IsProduction() {
			return fmt.Errorf("sandbox gateway is not allowed in production")
		}
	case "sepay":
		if c.Gateway.AccountNumber == "" || c.Gateway.BankCode == "" {
			return fmt.Errorf("SEPAY_ACCOUNT_NUMBER and SEPAY_BANK_CODE are required")
		}
	default:
		return fmt.Errorf("unknown GATEWAY_PROVIDER %q", c.Gateway.Provider)
	}
	if c.EventLog.Type == "mongodb" && c.EventLog.MongoURI == "" {
		return fmt.Errorf("MONGODB_URI is required for the mongodb event log")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
