package main

import (
	"fmt"
	"log/slog"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	"github.com/StricklySoft/identity-gateway/pkg/clients/minio"
	"github.com/StricklySoft/identity-gateway/pkg/clients/postgres"
	"github.com/StricklySoft/identity-gateway/pkg/clients/redis"
	"github.com/StricklySoft/identity-gateway/pkg/gateway"
	"github.com/StricklySoft/identity-gateway/pkg/keys"
)

// Store backends.
const (
	storeMemory   = "memory"
	storeRedis    = "redis"
	storePostgres = "postgres"
)

// Config is the full process configuration, loaded with the IDGW prefix:
// IDGW_LOG_LEVEL, IDGW_PROVIDER_AUTHORITY, IDGW_KEYS_SOURCE and so on.
type Config struct {
	Name     string `env:"NAME" envDefault:"identity-gateway" yaml:"name" json:"name"`
	Version  string `env:"VERSION" envDefault:"dev" yaml:"version" json:"version"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level" json:"log_level"`

	// Store selects the tenant store: memory, redis or postgres.
	Store string `env:"STORE" envDefault:"memory" yaml:"store" json:"store"`

	// PermissionsFile is a YAML role policy. The built-in policy is used
	// when empty.
	PermissionsFile string `env:"PERMISSIONS_FILE" yaml:"permissions_file" json:"permissions_file"`

	Gateway  gateway.Config           `env:"GATEWAY" yaml:"gateway" json:"gateway"`
	Auth     auth.MiddlewareConfig    `env:"AUTH" yaml:"auth" json:"auth"`
	Provider auth.DiscoveryConfig     `env:"PROVIDER" yaml:"provider" json:"provider"`
	Trust    auth.ExternalTrustConfig `env:"TRUST" yaml:"trust" json:"trust"`
	Keys     keys.Config              `env:"KEYS" yaml:"keys" json:"keys"`
	Redis    redis.Config             `env:"REDIS" yaml:"redis" json:"redis"`
	Postgres postgres.Config          `env:"POSTGRES" yaml:"postgres" json:"postgres"`
	MinIO    minio.Config             `env:"MINIO" yaml:"minio" json:"minio"`
}

// defaultConfig seeds the client sections, which carry no envDefault tags.
func defaultConfig() Config {
	return Config{
		Redis:    *redis.DefaultConfig(),
		Postgres: *postgres.DefaultConfig(),
		MinIO:    *minio.DefaultConfig(),
	}
}

// Validate checks the sections the selected backends use. Client sections
// are validated again when the client is built.
func (c *Config) Validate() error {
	switch c.Store {
	case storeMemory, storeRedis, storePostgres:
	default:
		return fmt.Errorf("store %q is not one of memory, redis, postgres", c.Store)
	}
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	if err := c.Keys.Validate(); err != nil {
		return err
	}
	if c.Keys.Source == keys.SourceObject {
		if err := c.MinIO.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) logLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
