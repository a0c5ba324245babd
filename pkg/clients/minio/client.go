// Package minio provides a traced S3-compatible object storage client. The
// identity gateway uses it to read its own signing key from a bucket.
//
//	cfg := minio.DefaultConfig()
//	cfg.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
//	cfg.SecretKey = minio.Secret(os.Getenv("MINIO_SECRET_KEY"))
//	client, err := minio.NewClient(ctx, *cfg)
//	pem, err := client.ReadObject(ctx, "identity", "signing-key.pem")
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

const tracerName = "github.com/StricklySoft/identity-gateway/pkg/clients/minio"

// ObjectStore is the subset of the minio-go API the [Client] wraps. It is
// satisfied by [*minio.Client].
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

var _ ObjectStore = (*minio.Client)(nil)

// Client is a traced object storage client. It is safe for concurrent use.
type Client struct {
	store        ObjectStore
	tracer       trace.Tracer
	healthBucket string
	transport    *http.Transport
}

// NewClient validates cfg, builds the SDK client and checks the server is reachable.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: cannot reach the server
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "minio: invalid configuration")
	}
	transport, err := minio.DefaultTransport(cfg.UseSSL)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "minio: failed to create transport")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Value(), ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "minio: failed to create client")
	}
	c := &Client{store: mc, tracer: otel.Tracer(tracerName), healthBucket: cfg.HealthBucket, transport: transport}
	if err := c.Health(ctx); err != nil {
		c.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "minio: failed to connect to server")
	}
	return c, nil
}

// Close drops the idle connections of a client built by [NewClient]. It is a
// no-op for clients from [NewFromStore].
func (c *Client) Close() {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
}

// NewFromStore wraps an existing [ObjectStore].
func NewFromStore(store ObjectStore, healthBucket string) *Client {
	if healthBucket == "" {
		healthBucket = "health-check-probe"
	}
	return &Client{store: store, tracer: otel.Tracer(tracerName), healthBucket: healthBucket}
}

// ReadObject downloads a whole object of at most [DefaultMaxObjectSize]
// bytes.
//
// Error codes returned:
//   - [sserr.CodeNotFoundObject]: the bucket or object does not exist
//   - [sserr.CodeValidation]: the object is larger than the limit
//   - [sserr.CodeTimeoutStore]: the context deadline was exceeded
//   - [sserr.CodeInternalStore]: any other failure
func (c *Client) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	ctx, span := c.startSpan(ctx, "ReadObject", bucket, fmt.Sprintf("GET %s/%s", bucket, object))
	data, err := c.readObject(ctx, bucket, object)
	finishSpan(span, err)
	return data, err
}

func (c *Client) readObject(ctx context.Context, bucket, object string) ([]byte, error) {
	obj, err := c.store.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapError(err, "minio: get object failed")
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, DefaultMaxObjectSize+1))
	if err != nil {
		return nil, wrapError(err, "minio: read object failed")
	}
	if len(data) > DefaultMaxObjectSize {
		return nil, sserr.Newf(sserr.CodeValidation, "minio: object %s/%s exceeds %d bytes", bucket, object, DefaultMaxObjectSize)
	}
	return data, nil
}

// PutObject uploads data as an object.
func (c *Client) PutObject(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	ctx, span := c.startSpan(ctx, "PutObject", bucket, fmt.Sprintf("PUT %s/%s", bucket, object))
	_, err := c.store.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: put object failed")
	}
	return nil
}

// EnsureBucket creates bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	ctx, span := c.startSpan(ctx, "EnsureBucket", bucket, "MAKEBUCKET "+bucket)
	err := c.ensureBucket(ctx, bucket)
	finishSpan(span, err)
	return err
}

func (c *Client) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := c.store.BucketExists(ctx, bucket)
	if err != nil {
		return wrapError(err, "minio: bucket exists failed")
	}
	if exists {
		return nil
	}
	if err := c.store.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return wrapError(err, "minio: make bucket failed")
	}
	return nil
}

// Health checks the server with BucketExists. [DefaultHealthTimeout]
// applies when ctx has no deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", c.healthBucket, "BucketExists "+c.healthBucket)
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}
	_, err := c.store.BucketExists(ctx, c.healthBucket)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "minio: health check failed")
	}
	return nil
}

func (c *Client) startSpan(ctx context.Context, op, bucket, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "minio."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "minio"),
		attribute.String("db.name", bucket),
		attribute.String("db.statement", truncateStatement(statement)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapError maps missing buckets and keys to [sserr.CodeNotFoundObject],
// deadline errors to [sserr.CodeTimeoutStore] and everything else to
// [sserr.CodeInternalStore].
func wrapError(err error, message string) *sserr.Error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return sserr.Wrap(err, sserr.CodeNotFoundObject, message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutStore, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalStore, message)
}
