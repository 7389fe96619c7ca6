// Package testutil provides helpers shared by integration tests, most
// notably a disposable JetStream-enabled NATS container.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sangrene/flexible-data-relay/natsclient"
)

// StartNATS launches a NATS container with JetStream enabled and returns
// its client URL. The container is terminated when the test finishes.
func StartNATS(ctx context.Context, t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
		Cmd:          []string{"-js"},
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	// JetStream takes a beat after the listener comes up.
	time.Sleep(200 * time.Millisecond)
	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

// ConnectedClient connects a natsclient.Client to the given URL and
// closes it when the test finishes.
func ConnectedClient(ctx context.Context, t *testing.T, url string) *natsclient.Client {
	t.Helper()
	client := natsclient.NewClient(url, nil)
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(client.Close)
	return client
}
