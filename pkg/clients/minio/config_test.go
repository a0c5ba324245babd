package minio

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_Redacts(t *testing.T) {
	t.Parallel()
	s := Secret("minio-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
	assert.Equal(t, "minio-secret", s.Value())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := &Config{Endpoint: "minio:9000", AccessKey: "k"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRegion, cfg.Region)
	assert.Equal(t, "health-check-probe", cfg.HealthBucket)

	err := (&Config{AccessKey: "k"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")

	err = (&Config{Endpoint: "minio:9000"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_key")
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.False(t, cfg.UseSSL)
}
