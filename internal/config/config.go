// Package config loads layered configuration (defaults, config file,
// environment variables) for the control plane using viper, following the
// same load/get/reload singleton discipline as the rest of this codebase's
// configuration surfaces.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Load loads configuration from configPath (if non-empty) plus environment
// variables, and caches the result. Subsequent calls return the cached
// instance; use Reload to force a re-read.
func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		instance, err = loadConfig(configPath)
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// Get returns the currently loaded configuration, or nil if Load has not
// been called yet.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Reload re-reads configuration from configPath and environment, replacing
// the cached instance.
func Reload(configPath string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	instance = cfg
	return instance, nil
}

// WatchForChanges installs a file watcher on configPath and invokes onChange
// with the newly reloaded config whenever the file is modified. It returns
// immediately; the watch runs until the process exits.
func WatchForChanges(configPath string, onChange func(*Config)) error {
	if configPath == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(configPath)
	v.OnConfigChange(func(_ fsnotify.Event) {
		if cfg, err := Reload(configPath); err == nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
	return nil
}

func loadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MCP_CONTROL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	} else {
		v.SetConfigName("mcp-control")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/mcp-control")
		v.AddConfigPath("$HOME/.mcp-control")
		_ = v.ReadInConfig()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if secret := os.Getenv("MCP_CONTROL_AUTH_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if pass := os.Getenv("MCP_CONTROL_DATABASE_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "mcp_control")
	v.SetDefault("database.username", "mcp_control")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.health_check_period", "30s")

	v.SetDefault("docker.api_version", "")
	v.SetDefault("docker.network_name", "mcp-control-net")
	v.SetDefault("docker.default_image", "mcp-server:latest")
	v.SetDefault("docker.start_port", 8765)
	v.SetDefault("docker.allowed_registries", []string{})

	v.SetDefault("auth.freshness_buffer", "5m")
	v.SetDefault("auth.refresh_interval", "10m")
	v.SetDefault("auth.request_timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
}
