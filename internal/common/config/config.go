// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Inbox    InboxConfig    `mapstructure:"inbox"`
	Lookups  LookupsConfig  `mapstructure:"lookups"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port            int `mapstructure:"port"`
	ReadTimeout     int `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
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
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig configures the event broker. Topics equal event types.
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	Topics          []string `mapstructure:"topics"`
	PublishTopic    string   `mapstructure:"publish_topic"`
	DeadLetterTopic string   `mapstructure:"dead_letter_topic"`
	WriteTimeout    int      `mapstructure:"write_timeout"` // milliseconds
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// PolicyConfig configures the permission gate client.
type PolicyConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
	Retries  int    `mapstructure:"retries"`
	Backoff  int    `mapstructure:"backoff"`   // milliseconds, doubled per attempt
	CacheTTL int    `mapstructure:"cache_ttl"` // milliseconds
	Enabled  bool   `mapstructure:"enabled"`
}

// InboxConfig controls deduplication and redelivery of consumed events.
type InboxConfig struct {
	DedupTTL    int `mapstructure:"dedup_ttl"`   // milliseconds
	ClaimLease  int `mapstructure:"claim_lease"` // milliseconds
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseBackoff int `mapstructure:"base_backoff"` // milliseconds
	MaxBackoff  int `mapstructure:"max_backoff"`  // milliseconds
}

// LookupsConfig controls the lookup name cache.
type LookupsConfig struct {
	CacheTTL int `mapstructure:"cache_ttl"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
