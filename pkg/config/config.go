package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	Outbox   OutboxConfig
	SMS      SMSConfig
	Email    EmailConfig
	Stripe   StripeConfig
	Matching MatchingConfig
	Security SecurityConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Ops      OpsConfig
	Features FeatureFlagsConfig
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MYHIBACHI_AUTO_MIGRATE" default:"false"`
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
	Env          string `envconfig:"MYHIBACHI_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"MYHIBACHI_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MYHIBACHI_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MYHIBACHI_SERVICE_KIND" default:"dispatch-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"MYHIBACHI_DB_DSN"`
	Driver string `envconfig:"MYHIBACHI_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MYHIBACHI_DB_HOST"`
	LegacyPort     int    `envconfig:"MYHIBACHI_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MYHIBACHI_DB_USER"`
	LegacyPassword string `envconfig:"MYHIBACHI_DB_PASSWORD"`
	LegacyName     string `envconfig:"MYHIBACHI_DB_NAME"`
	LegacySSLMode  string `envconfig:"MYHIBACHI_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MYHIBACHI_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MYHIBACHI_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MYHIBACHI_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MYHIBACHI_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	UseSQLite bool `envconfig:"MYHIBACHI_USE_SQLITE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MYHIBACHI_REDIS_URL" required:"true"`
	Password     string        `envconfig:"MYHIBACHI_REDIS_PASSWORD"`
	DB           int           `envconfig:"MYHIBACHI_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MYHIBACHI_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MYHIBACHI_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MYHIBACHI_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MYHIBACHI_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MYHIBACHI_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type OutboxConfig struct {
	BatchSize          int           `envconfig:"MYHIBACHI_OUTBOX_BATCH_SIZE" default:"10"`
	PollInterval       time.Duration `envconfig:"MYHIBACHI_OUTBOX_POLL_INTERVAL" default:"5s"`
	MaxRetries         int           `envconfig:"MYHIBACHI_OUTBOX_MAX_RETRIES" default:"5"`
	InitialRetryDelay  time.Duration `envconfig:"MYHIBACHI_OUTBOX_INITIAL_RETRY_DELAY" default:"1s"`
	MaxRetryDelay      time.Duration `envconfig:"MYHIBACHI_OUTBOX_MAX_RETRY_DELAY" default:"5m"`
	StuckAfter         time.Duration `envconfig:"MYHIBACHI_OUTBOX_STUCK_AFTER" default:"10m"`
	RetentionDays      int           `envconfig:"MYHIBACHI_OUTBOX_RETENTION_DAYS" default:"30"`
	ShutdownGrace      time.Duration `envconfig:"MYHIBACHI_OUTBOX_SHUTDOWN_GRACE" default:"30s"`
	CronInterval       time.Duration `envconfig:"MYHIBACHI_OUTBOX_CRON_INTERVAL" default:"5m"`
	CronLockKey        string        `envconfig:"MYHIBACHI_OUTBOX_CRON_LOCK_KEY" default:"mh:cron:dispatch"`
	DeliveryTimeout    time.Duration `envconfig:"MYHIBACHI_OUTBOX_DELIVERY_TIMEOUT" default:"15s"`
}

type SMSConfig struct {
	BaseURL   string        `envconfig:"MYHIBACHI_SMS_BASE_URL"`
	AuthURL   string        `envconfig:"MYHIBACHI_SMS_AUTH_URL"`
	AccountID string        `envconfig:"MYHIBACHI_SMS_ACCOUNT_ID"`
	APIKey    string        `envconfig:"MYHIBACHI_SMS_API_KEY"`
	APISecret string        `envconfig:"MYHIBACHI_SMS_API_SECRET"`
	From      string        `envconfig:"MYHIBACHI_SMS_FROM"`
	Timeout   time.Duration `envconfig:"MYHIBACHI_SMS_TIMEOUT" default:"15s"`
}

// Enabled reports whether the SMS channel has a complete configuration.
func (s SMSConfig) Enabled() bool {
	return s.BaseURL != "" && s.AuthURL != "" && s.APIKey != "" && s.APISecret != ""
}

type EmailConfig struct {
	Provider    string        `envconfig:"MYHIBACHI_EMAIL_PROVIDER" default:""`
	APIKey      string        `envconfig:"MYHIBACHI_EMAIL_API_KEY"`
	BaseURL     string        `envconfig:"MYHIBACHI_EMAIL_BASE_URL"`
	DefaultFrom string        `envconfig:"MYHIBACHI_EMAIL_FROM"`
	AdminEmail  string        `envconfig:"MYHIBACHI_EMAIL_ADMIN"`
	Timeout     time.Duration `envconfig:"MYHIBACHI_EMAIL_TIMEOUT" default:"15s"`

	SMTPHost     string `envconfig:"MYHIBACHI_SMTP_HOST"`
	SMTPPort     int    `envconfig:"MYHIBACHI_SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"MYHIBACHI_SMTP_USER"`
	SMTPPassword string `envconfig:"MYHIBACHI_SMTP_PASSWORD"`
}

// Enabled reports whether the email channel has a complete configuration for
// the selected transport.
func (e EmailConfig) Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(e.Provider)) {
	case "template", "sendgrid":
		return e.APIKey != "" && e.DefaultFrom != ""
	case "smtp":
		return e.SMTPHost != "" && e.SMTPUser != "" && e.DefaultFrom != ""
	default:
		return false
	}
}

type StripeConfig struct {
	APIKey string `envconfig:"MYHIBACHI_STRIPE_API_KEY"`
	Env    string `envconfig:"MYHIBACHI_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether the Stripe channel can be registered.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type MatchingConfig struct {
	AmountTolerance      float64       `envconfig:"MYHIBACHI_MATCH_AMOUNT_TOLERANCE" default:"1.00"`
	FuzzyAmountTolerance float64       `envconfig:"MYHIBACHI_MATCH_FUZZY_AMOUNT_TOLERANCE" default:"60.00"`
	Window               time.Duration `envconfig:"MYHIBACHI_MATCH_WINDOW" default:"24h"`
	FuzzyWindow          time.Duration `envconfig:"MYHIBACHI_MATCH_FUZZY_WINDOW" default:"72h"`
	PhoneWindow          time.Duration `envconfig:"MYHIBACHI_MATCH_PHONE_WINDOW" default:"168h"`
	MinScore             int           `envconfig:"MYHIBACHI_MATCH_MIN_SCORE" default:"50"`
	DepositPercent       int           `envconfig:"MYHIBACHI_MATCH_DEPOSIT_PERCENT" default:"50"`
}

type SecurityConfig struct {
	FieldKeySecret string `envconfig:"MYHIBACHI_FIELD_KEY_SECRET"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MYHIBACHI_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MYHIBACHI_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MYHIBACHI_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EventsTopic string `envconfig:"MYHIBACHI_PUBSUB_EVENTS_TOPIC"`
}

// Enabled reports whether the relay channel can be registered.
func (p PubSubConfig) Enabled(gcp GCPConfig) bool {
	return strings.TrimSpace(p.EventsTopic) != "" && strings.TrimSpace(gcp.ProjectID) != ""
}

type OpsConfig struct {
	Port string `envconfig:"MYHIBACHI_OPS_PORT" default:"9090"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" || db.UseSQLite {
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
