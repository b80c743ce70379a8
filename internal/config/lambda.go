package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// auroraEnv holds the Aurora Serverless component-based connection settings.
type auroraEnv struct {
	Endpoint string `env:"AURORA_ENDPOINT"`
	Name     string `env:"DATABASE_NAME"`
	User     string `env:"DATABASE_USER"`
	Password string `env:"DATABASE_PASSWORD"`
}

// LoadLambdaConfig loads configuration for the Lambda entrypoint. It reads
// the same sources as Load, with two differences: the pool defaults to two
// connections since RDS Proxy does the pooling, and when no DATABASE_URL is
// set the Aurora component variables are used if all of them are present.
func LoadLambdaConfig() (*Config, error) {
	cfg := Default()
	cfg.Database.MaxConns = 2
	cfg.Database.MinConns = 1
	cfg.Database.MaxConnIdleTime = 0

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Database.URL == "" {
		var aurora auroraEnv
		if err := env.Parse(&aurora); err != nil {
			return nil, fmt.Errorf("parse aurora env: %w", err)
		}
		if aurora.Endpoint != "" && aurora.Name != "" && aurora.User != "" && aurora.Password != "" {
			cfg.Database.Host = aurora.Endpoint
			cfg.Database.Port = 5432
			cfg.Database.Name = aurora.Name
			cfg.Database.User = aurora.User
			cfg.Database.Password = aurora.Password
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
