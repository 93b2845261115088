// Package config loads the environment-driven configuration for every
// subsystem of the scheduling core, using caarlos0/env struct tags.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// StoreConfig configures the TaskStore's database connection pool.
type StoreConfig struct {
	DatabaseURL           string        `env:"DATABASE_URL,required"`
	PoolSize              int           `env:"DB_POOL_SIZE" envDefault:"20"`
	MaxOverflow           int           `env:"DB_MAX_OVERFLOW" envDefault:"30"`
	PoolTimeout           time.Duration `env:"DB_POOL_TIMEOUT" envDefault:"30s"`
	PoolRecycle           time.Duration `env:"DB_POOL_RECYCLE" envDefault:"3600s"`
	PoolPrePing           bool          `env:"DB_POOL_PRE_PING" envDefault:"true"`
	SlowQueryThreshold    time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"100ms"`
	HealthCheckInterval   time.Duration `env:"DB_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// BrokerConfig configures the priority queue broker and its backing store.
type BrokerConfig struct {
	BrokerURL       string `env:"BROKER_URL,required"`
	ResultBackendURL string `env:"RESULT_BACKEND_URL"`
}

// AlertConfig configures the AlertManager's outbound channels.
type AlertConfig struct {
	SMTPServer   string   `env:"ALERT_SMTP_SERVER"`
	SMTPPort     int      `env:"ALERT_SMTP_PORT" envDefault:"587"`
	SMTPUsername string   `env:"ALERT_SMTP_USERNAME"`
	SMTPPassword string   `env:"ALERT_SMTP_PASSWORD"`
	FromEmail    string   `env:"ALERT_FROM_EMAIL"`
	ToEmails     []string `env:"ALERT_TO_EMAILS" envSeparator:","`
	SlackWebhook string   `env:"ALERT_SLACK_WEBHOOK_URL"`
	WebhookURL   string   `env:"ALERT_WEBHOOK_URL"`
}

// FeatureFlags toggles optional subsystems per spec §6.
type FeatureFlags struct {
	MetricsEnabled                  bool `env:"METRICS_ENABLED" envDefault:"true"`
	AlertingEnabled                 bool `env:"ALERTING_ENABLED" envDefault:"true"`
	PerformanceOptimizationEnabled  bool `env:"PERFORMANCE_OPTIMIZATION_ENABLED" envDefault:"true"`
	DependencySchedulingEnabled     bool `env:"DEPENDENCY_SCHEDULING_ENABLED" envDefault:"true"`
}

// SMSConfig configures the Twilio-backed SMS notification adapter.
type SMSConfig struct {
	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`
}

// OpenAIConfig configures the reference LLM-backed TaskRunner adapter.
type OpenAIConfig struct {
	APIKey string `env:"OPENAI_API_KEY"`
	Model  string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
}

// HealthConfig configures the optional WebSocket health-streaming endpoint.
type HealthConfig struct {
	ListenAddr string `env:"HEALTH_LISTEN_ADDR" envDefault:":8090"`
}

// NotifyConfig configures NotificationDispatcher's Postmark-backed email
// channel, distinct from AlertConfig's SMTP settings (alerts and user
// notifications use separate providers per spec §4.3/§4.7).
type NotifyConfig struct {
	PostmarkServerToken string `env:"POSTMARK_SERVER_TOKEN"`
	FromEmail           string `env:"NOTIFY_FROM_EMAIL"`
}

// Config is the full environment-derived configuration consumed by
// Orchestrator.configure.
type Config struct {
	Store    StoreConfig
	Broker   BrokerConfig
	Alert    AlertConfig
	Flags    FeatureFlags
	SMS      SMSConfig
	OpenAI   OpenAIConfig
	Notify   NotifyConfig
	Health   HealthConfig
}

// Load parses the environment into a Config, failing fast (per spec §7:
// "Configuration errors at startup are fatal") on any required variable
// that is missing or malformed.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg.Store); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.Broker); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.Alert); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.Flags); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.SMS); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.OpenAI); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.Notify); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.Health); err != nil {
		return nil, err
	}
	return &cfg, nil
}
