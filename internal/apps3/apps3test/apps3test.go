// Package apps3test starts a disposable MinIO for tests.
package apps3test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/k11v/pblbuild/internal/apps3"
)

// NewClient starts MinIO, creates bucket in it and returns a client.
func NewClient(tb testing.TB, ctx context.Context, bucket string) *s3.Client {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping in short mode")
	}

	username := "minioadmin"
	password := "minioadmin"

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "quay.io/minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor:   wait.ForHTTP("/minio/health/live").WithPort("9000"),
			Env: map[string]string{
				"MINIO_ROOT_USER":     username,
				"MINIO_ROOT_PASSWORD": password,
			},
			Cmd: []string{"server", "/data"},
		},
		Started: true,
	}

	c, err := testcontainers.GenericContainer(ctx, req)
	testcontainers.CleanupContainer(tb, c)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	port, err := c.MappedPort(ctx, "9000/tcp")
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	connectionString := fmt.Sprintf("http://%s:%s@%s:%s", username, password, host, port.Port())

	client, err := apps3.NewClient(connectionString)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	if err = apps3.Setup(ctx, client, bucket); err != nil {
		tb.Fatalf("didn't want %q", err)
	}

	return client
}
