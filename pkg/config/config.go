package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

const (
	EnvPrefix = "LEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvAppEnv      = "LEDGER_APP_ENV"
	EnvPort        = "LEDGER_APP_PORT"
	EnvDBDSN       = "LEDGER_DB_DSN"
	EnvDBDriver    = "LEDGER_DB_DRIVER"
	EnvDBHost      = "LEDGER_DB_HOST"
	EnvDBUser      = "LEDGER_DB_USER"
	EnvDBName      = "LEDGER_DB_NAME"
	EnvRedisURL    = "LEDGER_REDIS_URL"
	EnvJWTSecret   = "LEDGER_JWT_SECRET"
	EnvJWTIssuer   = "LEDGER_JWT_ISSUER"
	EnvMaxItems    = "LEDGER_PAYOUT_MAX_ITEMS"
	EnvLedgerTopic = "LEDGER_PUBSUB_TOPIC"
	EnvMaxAttempts = "LEDGER_OUTBOX_MAX_ATTEMPTS"
	EnvMinAttempts = "LEDGER_CRON_OUTBOX_MIN_ATTEMPTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

// Load reads LEDGER_* variables and reports every invalid setting at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	err := multierr.Combine(
		c.DB.ensureDSN(),
		c.DB.validate(),
		c.Ledger.validate(),
	)
	// parked outbox rows sit at the relay's attempt ceiling; a higher
	// retention threshold would keep them forever
	if c.Cron.OutboxMinAttempts > c.Outbox.MaxAttempts {
		err = multierr.Append(err, fmt.Errorf("%s (%d) must not exceed %s (%d)",
			EnvMinAttempts, c.Cron.OutboxMinAttempts, EnvMaxAttempts, c.Outbox.MaxAttempts))
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"LEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"LEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEDGER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LEDGER_DB_DSN"`
	Driver string `envconfig:"LEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"LEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEDGER_DB_USER"`
	LegacyPassword string `envconfig:"LEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LEDGER_DB_SLOW_QUERY" default:"500ms"`
	TxAttempts      int           `envconfig:"LEDGER_DB_TX_ATTEMPTS" default:"3"`
}

func (db DBConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(db.Driver)) {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvDBDriver, DriverPostgres, DriverSQLite, db.Driver)
	}
	if db.TxAttempts < 1 {
		return fmt.Errorf("LEDGER_DB_TX_ATTEMPTS must be at least 1")
	}
	return nil
}

// IsSQLite reports whether the local sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LEDGER_REDIS_URL"`
	Address      string        `envconfig:"LEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"LEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEDGER_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"LEDGER_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// JWTConfig verifies bearer tokens minted by the external auth service.
type JWTConfig struct {
	Secret            string `envconfig:"LEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LEDGER_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LEDGER_AUTO_MIGRATE" default:"false"`
}

type LedgerConfig struct {
	MaxItemsPerPayout   int           `envconfig:"LEDGER_PAYOUT_MAX_ITEMS" default:"500"`
	IdempotencyCacheTTL time.Duration `envconfig:"LEDGER_IDEMPOTENCY_CACHE_TTL" default:"168h"`
	PayoutRateLimit     int           `envconfig:"LEDGER_PAYOUT_RATE_LIMIT" default:"30"`
	PayoutRateWindow    time.Duration `envconfig:"LEDGER_PAYOUT_RATE_WINDOW" default:"1m"`
}

func (l LedgerConfig) validate() error {
	var err error
	if l.MaxItemsPerPayout <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvMaxItems))
	}
	if l.PayoutRateLimit < 0 || (l.PayoutRateLimit > 0 && l.PayoutRateWindow <= 0) {
		err = multierr.Append(err, fmt.Errorf("payout rate limit needs a non-negative limit and a positive window"))
	}
	return err
}

type GCPConfig struct {
	ProjectID string `envconfig:"LEDGER_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LedgerTopic string `envconfig:"LEDGER_PUBSUB_TOPIC" default:"ledger-events"`
	// CreateTopics creates missing topics at startup. Meant for the emulator
	// and dev projects; production topics are provisioned separately.
	CreateTopics bool `envconfig:"LEDGER_PUBSUB_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	ReconcileInterval    time.Duration `envconfig:"LEDGER_CRON_RECONCILE_INTERVAL" default:"1h"`
	ReconcileConcurrency int           `envconfig:"LEDGER_CRON_RECONCILE_CONCURRENCY" default:"4"`
	JobTimeout           time.Duration `envconfig:"LEDGER_CRON_JOB_TIMEOUT" default:"30m"`
	OutboxRetentionDays  int           `envconfig:"LEDGER_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxMinAttempts    int           `envconfig:"LEDGER_CRON_OUTBOX_MIN_ATTEMPTS" default:"10"`
	OutboxPruneBatch     int           `envconfig:"LEDGER_CRON_OUTBOX_PRUNE_BATCH" default:"500"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
