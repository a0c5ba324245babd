// Package config loads service configuration from struct tag defaults, an
// optional YAML or JSON file, and environment variables, in that order of
// increasing priority.
//
// Three struct tags drive the loader:
//
//   - `env:"NAME"` names the environment variable for a field; on a nested
//     struct it becomes a prefix for the children
//   - `envDefault:"value"` is applied when the field is still zero
//   - `required:"true"` fails loading if the field is zero afterwards
//
// File loading uses the standard `yaml` and `json` tags.
//
//	type Config struct {
//	    Addr        string        `env:"ADDR" envDefault:":8080" yaml:"addr"`
//	    ReadTimeout time.Duration `env:"READ_TIMEOUT" envDefault:"10s" yaml:"read_timeout"`
//	    Keys        keys.Config   `env:"KEYS" yaml:"keys"`
//	}
//
//	cfg := config.MustLoad[Config](config.New().WithEnvPrefix("IDGW").WithFile(path))
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// Loader resolves configuration into a struct. It is not safe for
// concurrent use; build one per Load.
type Loader struct {
	envPrefix string
	filePath  string
	lookupEnv func(string) (string, bool)
}

// New returns a Loader that reads environment variables only.
func New() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// WithEnvPrefix prepends prefix and an underscore to every environment
// variable name. The prefix is uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile configures a .yaml, .yml or .json file. A missing file is not an
// error.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithLookup replaces os.LookupEnv, mainly for tests.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// Load fills cfg, which must be a non-nil pointer to a struct, then runs
// required-field validation and cfg's Validate method if it implements
// [Validator].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()

	err := walk(rv, "", func(f field) error {
		def, ok := f.tag.Lookup("envDefault")
		if !ok || !f.value.IsZero() {
			return nil
		}
		if err := setFromString(f.value, def); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: invalid default for %s", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	err = walk(rv, l.envPrefix, func(f field) error {
		if f.envKey == "" {
			return nil
		}
		raw, ok := l.lookup(f.envKey)
		if !ok {
			return nil
		}
		if err := setFromString(f.value, raw); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: invalid value in %s for %s", f.envKey, f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T and panics on failure. Use it in main, where a bad
// configuration must stop the process before it serves traffic.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) lookup(key string) (string, bool) {
	if l.lookupEnv == nil {
		return os.LookupEnv(key)
	}
	return l.lookupEnv(key)
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain '..'")
	}

	data, err := os.ReadFile(l.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to parse %q", l.filePath)
	}
	return nil
}
