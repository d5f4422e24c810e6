package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Matching      MatchingConfig          `mapstructure:"matching"`
	APIs          APIsConfig              `mapstructure:"apis"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Server        ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	UsePlaintext   bool   `mapstructure:"use_plaintext"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Addresses    []string `mapstructure:"addresses"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	TrainerIndex string   `mapstructure:"trainer_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// --- Matching engine ---

// Candidate pool sources.
const (
	CandidateSourcePostgres      = "postgres"
	CandidateSourceElasticsearch = "elasticsearch"
)

// Lock backends for the result upserter.
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// MatchingConfig tunes the ranking pass, persistence and the notification trigger.
type MatchingConfig struct {
	TopK            int     `mapstructure:"top_k"`
	MaxConcurrency  int     `mapstructure:"max_concurrency"`
	NotifyThreshold float64 `mapstructure:"notify_threshold"`
	FallbackMode    string  `mapstructure:"fallback_mode"`   // skills | weighted
	PruneStale      bool    `mapstructure:"prune_stale"`
	CandidateSource string  `mapstructure:"candidate_source"` // postgres | elasticsearch
	PrimaryTimeout  int     `mapstructure:"primary_timeout"`  // milliseconds
	LockBackend     string  `mapstructure:"lock_backend"`     // local | redis
	LockTTL         int     `mapstructure:"lock_ttl"`         // milliseconds
}

// --- External APIs ---

// Intelligence scorer providers.
const (
	ProviderNone   = "none"
	ProviderHTTP   = "http"
	ProviderGemini = "gemini"
)

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	Intelligence IntelligenceConfig `mapstructure:"intelligence"`
}

type IntelligenceConfig struct {
	Provider   string `mapstructure:"provider"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`
	CacheTTL   int    `mapstructure:"cache_ttl"` // seconds, 0 disables caching
}

// NotificationConfig holds settings for the notification transport.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	// TemplateRegistry is a JSON template file; empty uses the built-in templates.
	TemplateRegistry string `mapstructure:"template_registry"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig is the health/metrics HTTP listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}
