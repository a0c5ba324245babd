package minio

import (
	"errors"
	"time"
)

// maxStatementTruncateLen caps the db.statement span attribute.
const maxStatementTruncateLen = 100

const (
	DefaultEndpoint      = "minio.databases.svc.cluster.local:9000"
	DefaultRegion        = "us-east-1"
	DefaultHealthTimeout = 5 * time.Second

	// DefaultMaxObjectSize bounds ReadObject. Key material is a few KiB.
	DefaultMaxObjectSize = 1 << 20
)

// Secret is a string that redacts itself when printed or serialized.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string { return redacted }

func (s Secret) GoString() string { return redacted }

// Value returns the secret in clear text.
func (s Secret) Value() string { return string(s) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the object storage connection settings.
type Config struct {
	// Endpoint is host:port without a scheme.
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey Secret `json:"-" yaml:"-" env:"SECRET_KEY"`

	// Region is passed to the SDK so it skips bucket location lookups.
	Region string `json:"region,omitempty" yaml:"region" env:"REGION"`
	UseSSL bool   `json:"use_ssl,omitempty" yaml:"use_ssl" env:"USE_SSL"`

	// HealthBucket is checked with BucketExists. It does not need to exist.
	HealthBucket string `json:"health_bucket,omitempty" yaml:"health_bucket" env:"HEALTH_BUCKET"`
}

// DefaultConfig returns a Config pointing at the in-cluster object store.
func DefaultConfig() *Config {
	return &Config{Endpoint: DefaultEndpoint, Region: DefaultRegion}
}

// Validate applies defaults and reports missing required values.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio: config endpoint must not be empty")
	}
	if c.AccessKey == "" {
		return errors.New("minio: config access_key must not be empty")
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.HealthBucket == "" {
		c.HealthBucket = "health-check-probe"
	}
	return nil
}

func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
