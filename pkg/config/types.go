package config

import (
	"fmt"

	"github.com/stewones/borda-sub001/pkg/schema"
)

// Config is the main configuration struct, shared by the server daemon and
// the client sync agent (each reads the sections it needs).
type Config struct {
	Server      ServerConfig        `yaml:"server"`
	Mongo       MongoConfig         `yaml:"mongo"`
	Security    SecurityConfig      `yaml:"security"`
	Logging     LoggingConfig       `yaml:"logging"`
	Sync        SyncConfig          `yaml:"sync"`
	Live        LiveConfig          `yaml:"live"`
	Cache       CacheConfig         `yaml:"cache"`
	Retention   RetentionConfig     `yaml:"retention"`
	Client      ClientConfig        `yaml:"client"`
	Collections []schema.Collection `yaml:"collections"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	TLS     TLSConfig `yaml:"tls"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 1377
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MongoConfig holds the authoritative store connection settings.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	APIKeys   struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
	} `yaml:"api_keys"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SyncConfig tunes the pull-sync channel on both sides.
type SyncConfig struct {
	PageSize    int      `yaml:"page_size"`
	ToleranceMs int      `yaml:"tolerance_ms"`
	Interval    Duration `yaml:"interval"`
}

// LiveConfig tunes the live channel transport.
type LiveConfig struct {
	PingInterval     Duration `yaml:"ping_interval"`
	WriteTimeout     Duration `yaml:"write_timeout"`
	ReconnectBackoff Duration `yaml:"reconnect_backoff"`
}

// CacheConfig tunes the server query cache.
type CacheConfig struct {
	TTL        Duration `yaml:"ttl"`
	MaxEntries int      `yaml:"max_entries"`
}

// RetentionConfig holds configuration for the tombstone sweep runner.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	Period  string `yaml:"period"`
}

// ClientConfig configures the client-side replica and sync agent.
type ClientConfig struct {
	DBPath      string    `yaml:"db_path"`
	ServerURL   string    `yaml:"server_url"`
	Token       string    `yaml:"token"`
	Collections []string  `yaml:"collections"`
	IQLAddr     string    `yaml:"iql_addr"`
	QueueSize   int       `yaml:"queue_size"`
	MaxBodySize SizeBytes `yaml:"max_body_size"`
}
