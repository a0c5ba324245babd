package keys

import (
	"context"
	"os"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// Source returns the PEM-encoded private key.
type Source interface {
	// Name identifies the source in logs. It never contains key material.
	Name() string
	Load(ctx context.Context) ([]byte, error)
}

// StaticSource holds the PEM in memory, usually from an environment
// variable.
type StaticSource struct {
	PEM auth.Secret
}

func (s StaticSource) Name() string { return "static" }

func (s StaticSource) Load(context.Context) ([]byte, error) {
	if s.PEM == "" {
		return nil, sserr.New(sserr.CodeConfigurationKey, "keys: private key is empty")
	}
	return []byte(s.PEM.Value()), nil
}

// FileSource reads the PEM from a mounted file.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeConfigurationKey, "keys: read private key file %s", s.Path)
	}
	return data, nil
}

// ObjectReader is satisfied by [minio.Client].
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, error)
}

// ObjectSource downloads the PEM from object storage.
type ObjectSource struct {
	Reader ObjectReader
	Bucket string
	Object string
}

func (s ObjectSource) Name() string { return "object:" + s.Bucket + "/" + s.Object }

func (s ObjectSource) Load(ctx context.Context) ([]byte, error) {
	data, err := s.Reader.ReadObject(ctx, s.Bucket, s.Object)
	if err != nil {
		if sserr.IsTimeout(err) || sserr.IsUnavailable(err) {
			return nil, err
		}
		return nil, sserr.Wrapf(err, sserr.CodeConfigurationKey,
			"keys: read private key object %s/%s", s.Bucket, s.Object)
	}
	return data, nil
}
