package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

type testSecret string

func (testSecret) String() string { return "[REDACTED]" }

type storeSection struct {
	Backend  string     `env:"BACKEND" envDefault:"memory" yaml:"backend" json:"backend"`
	Host     string     `env:"HOST" yaml:"host" json:"host"`
	Password testSecret `env:"PASSWORD" yaml:"password" json:"password"`
}

type gatewayConfig struct {
	Addr           string        `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`
	AuthRequired   bool          `env:"AUTH_REQUIRED" envDefault:"true" yaml:"auth_required" json:"auth_required"`
	ClockSkew      time.Duration `env:"CLOCK_SKEW" envDefault:"2m" yaml:"clock_skew" json:"clock_skew"`
	AllowedAlgs    []string      `env:"ALLOWED_ALGS" envDefault:"RS256,RS384,RS512" yaml:"allowed_algs" json:"allowed_algs"`
	MaxConns       int32         `env:"MAX_CONNS" envDefault:"10" yaml:"max_conns" json:"max_conns"`
	Store          storeSection  `env:"STORE" yaml:"store" json:"store"`
	IdentityIssuer string        `env:"ISSUER" yaml:"issuer" json:"issuer"`
}

type requiredConfig struct {
	Issuer string `env:"ISSUER" required:"true"`
	Nested struct {
		Key string `env:"KEY" required:"true"`
	} `env:"NESTED"`
}

type validatingConfig struct {
	Min int `env:"MIN" envDefault:"5"`
	Max int `env:"MAX" envDefault:"1"`
}

func (c *validatingConfig) Validate() error {
	if c.Min > c.Max {
		return errors.New("min exceeds max")
	}
	return nil
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ===========================================================================
// Defaults and environment
// ===========================================================================

// TestLoad_Defaults verifies envDefault values are applied to zero fields.
func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	var cfg gatewayConfig
	require.NoError(t, New().WithLookup(envMap(nil)).Load(&cfg))

	assert.Equal(t, ":8080", cfg.Addr)
	assert.True(t, cfg.AuthRequired)
	assert.Equal(t, 2*time.Minute, cfg.ClockSkew)
	assert.Equal(t, []string{"RS256", "RS384", "RS512"}, cfg.AllowedAlgs)
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

// TestLoad_EnvOverridesWithNestedPrefix verifies that env vars win and that
// nested struct env tags become part of the variable name.
func TestLoad_EnvOverridesWithNestedPrefix(t *testing.T) {
	t.Parallel()
	var cfg gatewayConfig
	env := envMap(map[string]string{
		"IDGW_ADDR":           ":9090",
		"IDGW_AUTH_REQUIRED":  "false",
		"IDGW_ALLOWED_ALGS":   "RS256, ES256 ,",
		"IDGW_STORE_BACKEND":  "redis",
		"IDGW_STORE_PASSWORD": "hunter2",
	})
	require.NoError(t, New().WithEnvPrefix("idgw").WithLookup(env).Load(&cfg))

	assert.Equal(t, ":9090", cfg.Addr)
	assert.False(t, cfg.AuthRequired)
	assert.Equal(t, []string{"RS256", "ES256"}, cfg.AllowedAlgs)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, testSecret("hunter2"), cfg.Store.Password)
}

// TestLoad_InvalidEnvValue verifies parse failures surface as configuration errors.
func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Parallel()
	var cfg gatewayConfig
	err := New().WithLookup(envMap(map[string]string{"CLOCK_SKEW": "soon"})).Load(&cfg)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeInternalConfiguration))
}

// ===========================================================================
// Files
// ===========================================================================

// TestLoad_YAMLFileBetweenDefaultsAndEnv verifies file values override
// defaults and are themselves overridden by env.
func TestLoad_YAMLFileBetweenDefaultsAndEnv(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "gateway.yaml", `
addr: ":7000"
issuer: "https://login.example.com/"
store:
  backend: postgres
  host: db.internal
`)
	var cfg gatewayConfig
	env := envMap(map[string]string{"STORE_HOST": "db.override"})
	require.NoError(t, New().WithFile(path).WithLookup(env).Load(&cfg))

	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "https://login.example.com/", cfg.IdentityIssuer)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "db.override", cfg.Store.Host)
}

// TestLoad_JSONFile verifies JSON files are parsed by extension.
func TestLoad_JSONFile(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "gateway.json", `{"addr": ":7100", "store": {"backend": "redis"}}`)
	var cfg gatewayConfig
	require.NoError(t, New().WithFile(path).WithLookup(envMap(nil)).Load(&cfg))
	assert.Equal(t, ":7100", cfg.Addr)
	assert.Equal(t, "redis", cfg.Store.Backend)
}

// TestLoad_MissingFileIgnored verifies that a missing file is not an error.
func TestLoad_MissingFileIgnored(t *testing.T) {
	t.Parallel()
	var cfg gatewayConfig
	path := filepath.Join(t.TempDir(), "absent.yaml")
	require.NoError(t, New().WithFile(path).WithLookup(envMap(nil)).Load(&cfg))
	assert.Equal(t, ":8080", cfg.Addr)
}

func TestLoad_FileErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"traversal", func(*testing.T) string { return "../etc/gateway.yaml" }},
		{"unknown extension", func(t *testing.T) string { return writeFile(t, "gateway.toml", "a=1") }},
		{"bad yaml", func(t *testing.T) string { return writeFile(t, "gateway.yaml", "addr: [") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cfg gatewayConfig
			err := New().WithFile(tt.path(t)).WithLookup(envMap(nil)).Load(&cfg)
			require.Error(t, err)
			assert.True(t, sserr.HasCode(err, sserr.CodeInternalConfiguration), "got %v", err)
		})
	}
}

// ===========================================================================
// Validation
// ===========================================================================

// TestLoad_RequiredNested verifies required tags are enforced on nested fields
// and the dotted path is reported.
func TestLoad_RequiredNested(t *testing.T) {
	t.Parallel()
	var cfg requiredConfig
	err := New().WithLookup(envMap(map[string]string{"ISSUER": "x"})).Load(&cfg)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))
	assert.Contains(t, err.Error(), "Nested.Key")

	err = New().WithLookup(envMap(map[string]string{"ISSUER": "x", "NESTED_KEY": "k"})).Load(&cfg)
	assert.NoError(t, err)
}

// TestLoad_CustomValidator verifies Validate is invoked and plain errors are wrapped.
func TestLoad_CustomValidator(t *testing.T) {
	t.Parallel()
	var cfg validatingConfig
	err := New().WithLookup(envMap(nil)).Load(&cfg)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidation))

	err = New().WithLookup(envMap(map[string]string{"MAX": "9"})).Load(&cfg)
	assert.NoError(t, err)
}

func TestLoad_RejectsNonPointer(t *testing.T) {
	t.Parallel()
	err := New().Load(gatewayConfig{})
	assert.True(t, sserr.HasCode(err, sserr.CodeInternalConfiguration))
	assert.True(t, sserr.HasCode(New().Load(nil), sserr.CodeInternalConfiguration))
}

func TestMustLoad_Panics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		MustLoad[requiredConfig](New().WithLookup(envMap(nil)))
	})
	cfg := MustLoad[gatewayConfig](New().WithLookup(envMap(nil)))
	assert.Equal(t, ":8080", cfg.Addr)
}
