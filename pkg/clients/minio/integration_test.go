//go:build integration

package minio_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/identity-gateway/internal/testutil"
	"github.com/StricklySoft/identity-gateway/internal/testutil/containers"
	"github.com/StricklySoft/identity-gateway/pkg/clients/minio"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

func TestMinIOIntegration_ObjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	result, err := containers.StartMinIO(ctx)
	require.NoError(t, err, "failed to start MinIO container")
	t.Cleanup(func() { _ = result.Container.Terminate(ctx) })

	client, err := minio.NewClient(ctx, minio.Config{
		Endpoint:  result.Endpoint,
		AccessKey: result.AccessKey,
		SecretKey: minio.Secret(result.SecretKey),
	})
	require.NoError(t, err)

	require.NoError(t, client.EnsureBucket(ctx, "identity"))
	require.NoError(t, client.EnsureBucket(ctx, "identity"))
	require.NoError(t, client.PutObject(ctx, "identity", "signing-key.pem", []byte("pem-bytes"), "application/x-pem-file"))

	data, err := client.ReadObject(ctx, "identity", "signing-key.pem")
	require.NoError(t, err)
	require.Equal(t, "pem-bytes", string(data))

	_, err = client.ReadObject(ctx, "identity", "missing.pem")
	testutil.RequireErrorCode(t, err, sserr.CodeNotFoundObject)
}
