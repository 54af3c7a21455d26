package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "bizpilot"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvDBDSN  = "BIZPILOT_DB_DSN"
	EnvDBHost = "BIZPILOT_DB_HOST"
	EnvDBUser = "BIZPILOT_DB_USER"
	EnvDBName = "BIZPILOT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Layby        LaybyConfig
	FeatureFlags FeatureFlagsConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BIZPILOT_APP_ENV" required:"true"`
	Port         string `envconfig:"BIZPILOT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BIZPILOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BIZPILOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BIZPILOT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BIZPILOT_DB_DSN"`
	Driver string `envconfig:"BIZPILOT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BIZPILOT_DB_HOST"`
	LegacyPort     int    `envconfig:"BIZPILOT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BIZPILOT_DB_USER"`
	LegacyPassword string `envconfig:"BIZPILOT_DB_PASSWORD"`
	LegacyName     string `envconfig:"BIZPILOT_DB_NAME"`
	LegacySSLMode  string `envconfig:"BIZPILOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BIZPILOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BIZPILOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BIZPILOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BIZPILOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BIZPILOT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BIZPILOT_REDIS_ADDR"`
	Password     string        `envconfig:"BIZPILOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"BIZPILOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BIZPILOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BIZPILOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BIZPILOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BIZPILOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BIZPILOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LaybyConfig holds engine-wide fallbacks used when a business has no
// layby_configs row. Per-business policy always wins.
type LaybyConfig struct {
	DefaultMinDepositPercent     string `envconfig:"BIZPILOT_LAYBY_DEFAULT_MIN_DEPOSIT_PERCENT" default:"10"`
	DefaultMaxDurationDays       int    `envconfig:"BIZPILOT_LAYBY_DEFAULT_MAX_DURATION_DAYS" default:"90"`
	DefaultMaxExtensions         int    `envconfig:"BIZPILOT_LAYBY_DEFAULT_MAX_EXTENSIONS" default:"2"`
	DefaultCancellationFeePct    string `envconfig:"BIZPILOT_LAYBY_DEFAULT_CANCELLATION_FEE_PERCENT" default:"10"`
	DefaultCancellationFeeMin    string `envconfig:"BIZPILOT_LAYBY_DEFAULT_CANCELLATION_FEE_MINIMUM" default:"10.00"`
	DefaultRestockingFee         string `envconfig:"BIZPILOT_LAYBY_DEFAULT_RESTOCKING_FEE" default:"0.00"`
	DefaultExtensionFee          string `envconfig:"BIZPILOT_LAYBY_DEFAULT_EXTENSION_FEE" default:"0.00"`
	DefaultReminderLeadDays      int    `envconfig:"BIZPILOT_LAYBY_DEFAULT_REMINDER_LEAD_DAYS" default:"3"`
	DefaultCollectionGraceDays   int    `envconfig:"BIZPILOT_LAYBY_DEFAULT_COLLECTION_GRACE_DAYS" default:"14"`
	ReferencePrefix              string `envconfig:"BIZPILOT_LAYBY_REFERENCE_PREFIX" default:"LBY"`
	PaymentIdempotencyTTLMinutes int    `envconfig:"BIZPILOT_LAYBY_PAYMENT_IDEMPOTENCY_TTL_MINUTES" default:"1440"`
}

// PaymentIdempotencyTTL returns the retention window for payment idempotency keys.
func (l LaybyConfig) PaymentIdempotencyTTL() time.Duration {
	if l.PaymentIdempotencyTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(l.PaymentIdempotencyTTLMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BIZPILOT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BIZPILOT_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	IntervalMinutes int    `envconfig:"BIZPILOT_CRON_INTERVAL_MINUTES" default:"60"`
	LockKey         string `envconfig:"BIZPILOT_CRON_LOCK_KEY" default:"bizpilot:cron:layby"`
	LockTTLMinutes  int    `envconfig:"BIZPILOT_CRON_LOCK_TTL_MINUTES" default:"90"`
	MetricsPort     string `envconfig:"BIZPILOT_CRON_METRICS_PORT" default:"9090"`
}

// Interval returns the cron cadence.
func (c CronConfig) Interval() time.Duration {
	if c.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// LockTTL returns how long the leader lock is held before expiring.
func (c CronConfig) LockTTL() time.Duration {
	if c.LockTTLMinutes <= 0 {
		return 90 * time.Minute
	}
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BIZPILOT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BIZPILOT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BIZPILOT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BIZPILOT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BIZPILOT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BIZPILOT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LaybyEventsTopic string `envconfig:"BIZPILOT_PUBSUB_LAYBY_EVENTS_TOPIC" default:"bp-layby-events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
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
