package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Triage       TriageConfig
	AI           AIConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// TriageConfig tunes the approval -> triage hand-off.
type TriageConfig struct {
	DelayMillis             int
	Workers                 int
	PollIntervalMillis      int
	VisibilityTimeoutSecs   int
	MaxAttempts             int
	ReconcileIntervalSecs   int
	StaleAfterSecs          int
	QueueKey                string
	SolutionMaxLength       int
	RecentTicketsForContext int
}

// AIConfig points at the generative-AI service.
type AIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sistec-helpdesk-api"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Triage: TriageConfig{
			DelayMillis:             getEnvAsInt("TRIAGE_DELAY_MS", 2000),
			Workers:                 getEnvAsInt("TRIAGE_WORKERS", 2),
			PollIntervalMillis:      getEnvAsInt("TRIAGE_POLL_INTERVAL_MS", 500),
			VisibilityTimeoutSecs:   getEnvAsInt("TRIAGE_VISIBILITY_TIMEOUT_SECONDS", 120),
			MaxAttempts:             getEnvAsInt("TRIAGE_MAX_ATTEMPTS", 5),
			ReconcileIntervalSecs:   getEnvAsInt("TRIAGE_RECONCILE_INTERVAL_SECONDS", 60),
			StaleAfterSecs:          getEnvAsInt("TRIAGE_STALE_AFTER_SECONDS", 300),
			QueueKey:                getEnv("TRIAGE_QUEUE_KEY", "sistec:triage"),
			SolutionMaxLength:       getEnvAsInt("TRIAGE_SOLUTION_MAX_LENGTH", 1200),
			RecentTicketsForContext: getEnvAsInt("TRIAGE_RECENT_TICKETS", 5),
		},
		AI: AIConfig{
			BaseURL:        getEnv("AI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			APIKey:         os.Getenv("AI_API_KEY"),
			Model:          getEnv("AI_MODEL", "gemini-1.5-flash"),
			TimeoutSeconds: getEnvAsInt("AI_TIMEOUT_SECONDS", 30),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@sistec.local"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if cfg.Triage.Workers <= 0 {
		return nil, fmt.Errorf("invalid TRIAGE_WORKERS: %d", cfg.Triage.Workers)
	}
	if cfg.Triage.SolutionMaxLength <= 3 {
		return nil, fmt.Errorf("invalid TRIAGE_SOLUTION_MAX_LENGTH: %d", cfg.Triage.SolutionMaxLength)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// Delay is the wait between approval and the first triage attempt.
func (t TriageConfig) Delay() time.Duration {
	return time.Duration(t.DelayMillis) * time.Millisecond
}

// PollInterval is how often idle workers check the queue.
func (t TriageConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMillis) * time.Millisecond
}

// VisibilityTimeout bounds how long a claimed job stays invisible.
func (t TriageConfig) VisibilityTimeout() time.Duration {
	return time.Duration(t.VisibilityTimeoutSecs) * time.Second
}

// ReconcileInterval is how often stranded approvals are re-enqueued.
func (t TriageConfig) ReconcileInterval() time.Duration {
	return time.Duration(t.ReconcileIntervalSecs) * time.Second
}

// StaleAfter is how long a ticket may sit in APPROVED before reconciliation.
func (t TriageConfig) StaleAfter() time.Duration {
	return time.Duration(t.StaleAfterSecs) * time.Second
}

// Timeout bounds a single AI call.
func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
