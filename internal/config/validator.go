package config

import "fmt"

// Validate checks that a loaded configuration is internally consistent
// before the rest of the process relies on it.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Database.MinConnections < 1 {
		return fmt.Errorf("database.min_connections must be >= 1")
	}
	if cfg.Database.MaxConnections < cfg.Database.MinConnections {
		return fmt.Errorf("database.max_connections must be >= database.min_connections")
	}
	if cfg.Docker.NetworkName == "" {
		return fmt.Errorf("docker.network_name is required")
	}
	if cfg.Docker.StartPort < 1024 || cfg.Docker.StartPort > 65535 {
		return fmt.Errorf("docker.start_port out of range: %d", cfg.Docker.StartPort)
	}
	if cfg.Environment != "production" {
		return nil
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}
	return nil
}
