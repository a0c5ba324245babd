package keys

import (
	"fmt"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
)

// Source kinds accepted by [Config.Source].
const (
	SourceStatic = "static"
	SourceFile   = "file"
	SourceObject = "object"
)

// Config selects where the own signing key is read from.
type Config struct {
	Source string `json:"source" yaml:"source" env:"SOURCE" envDefault:"static"`

	// PrivateKey is the PEM for the static source. Literal "\n" sequences
	// are accepted.
	PrivateKey auth.Secret `json:"-" yaml:"-" env:"PRIVATE_KEY"`

	PrivateKeyFile string `json:"private_key_file,omitempty" yaml:"private_key_file" env:"PRIVATE_KEY_FILE"`

	Bucket string `json:"bucket,omitempty" yaml:"bucket" env:"BUCKET" envDefault:"identity"`
	Object string `json:"object,omitempty" yaml:"object" env:"OBJECT" envDefault:"signing-key.pem"`
}

// Validate reports settings missing for the selected source.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceStatic, "":
		if c.PrivateKey == "" {
			return fmt.Errorf("keys: private_key is required for the %s source", SourceStatic)
		}
	case SourceFile:
		if c.PrivateKeyFile == "" {
			return fmt.Errorf("keys: private_key_file is required for the %s source", SourceFile)
		}
	case SourceObject:
		if c.Bucket == "" || c.Object == "" {
			return fmt.Errorf("keys: bucket and object are required for the %s source", SourceObject)
		}
	default:
		return fmt.Errorf("keys: unknown source %q", c.Source)
	}
	return nil
}

// NewSource builds the configured source. objects is only used by the
// object source and may be nil otherwise.
func NewSource(cfg Config, objects ObjectReader) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Source {
	case SourceFile:
		return FileSource{Path: cfg.PrivateKeyFile}, nil
	case SourceObject:
		if objects == nil {
			return nil, fmt.Errorf("keys: the %s source needs an object store client", SourceObject)
		}
		return ObjectSource{Reader: objects, Bucket: cfg.Bucket, Object: cfg.Object}, nil
	default:
		return StaticSource{PEM: cfg.PrivateKey}, nil
	}
}
