package config

import (
	"fmt"
	"time"
)

// Config is the fully-resolved configuration for the control plane process.
type Config struct {
	Environment string `mapstructure:"environment"`

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the registry's Postgres connection pool.
type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Database         string        `mapstructure:"database"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxConnections   int32         `mapstructure:"max_connections"`
	MinConnections   int32         `mapstructure:"min_connections"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckEvery time.Duration `mapstructure:"health_check_period"`
}

// URL renders the Postgres connection string pgx and golang-migrate both
// accept, the single source of truth for this DSN's format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// DockerConfig configures the supervisor's Docker Engine client and the
// network/image defaults new containers are created with.
type DockerConfig struct {
	Host              string   `mapstructure:"host"` // empty = use DOCKER_HOST / default socket
	APIVersion        string   `mapstructure:"api_version"`
	NetworkName       string   `mapstructure:"network_name"`
	DefaultImage      string   `mapstructure:"default_image"`
	StartPort         int      `mapstructure:"start_port"`
	AllowedRegistries []string `mapstructure:"allowed_registries"`
}

// AuthConfig configures the auth token manager's identity provider client.
type AuthConfig struct {
	IdentityProviderURL string        `mapstructure:"identity_provider_url"`
	JWTSecret           string        `mapstructure:"jwt_secret"`
	FreshnessBuffer     time.Duration `mapstructure:"freshness_buffer"`
	RefreshInterval     time.Duration `mapstructure:"refresh_interval"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig controls the zerolog base logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}
