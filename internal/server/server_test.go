package server_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/hygeia-go/internal/server"
	"github.com/raphaelgruber/hygeia-go/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger creates a logger that writes to stderr for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func connect(t *testing.T, ctx context.Context, srv *server.Server) *mcp.ClientSession {
	t.Helper()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestServerCreation(t *testing.T) {
	srv := server.New("test-version", testLogger())
	require.NotNil(t, srv)
	require.NotNil(t, srv.MCPServer(), "underlying MCP server should not be nil")

	// nil logger falls back to the default
	require.NotNil(t, server.New("test-version", nil))
}

func TestServerWithInMemoryTransport(t *testing.T) {
	srv := server.New("0.1.0-test", testLogger())
	srv.Setup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session := connect(t, ctx, srv)

	initResult := session.InitializeResult()
	require.NotNil(t, initResult, "initialize result should not be nil")
	assert.Equal(t, "hygeia", initResult.ServerInfo.Name)
	assert.Equal(t, "0.1.0-test", initResult.ServerInfo.Version)
	assert.Contains(t, initResult.Instructions, "fit_network")

	toolsResult, err := session.ListTools(ctx, nil)
	require.NoError(t, err, "ListTools should succeed")
	assert.Empty(t, toolsResult.Tools, "should have no tools registered")
}

func TestServerRespondsToMultipleRequests(t *testing.T) {
	srv := server.New("0.1.0-test", testLogger())
	srv.Setup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session := connect(t, ctx, srv)

	for i := 0; i < 3; i++ {
		_, err := session.ListTools(ctx, nil)
		require.NoError(t, err, "request %d should succeed", i)
	}
}

func TestTracingMiddlewareExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "hygeia-test",
		Exporter:    telemetry.ExporterStdout,
		Writer:      &buf,
	})
	require.NoError(t, err)

	srv := server.New("0.1.0-test", testLogger())
	srv.Setup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session := connect(t, ctx, srv)

	_, err = session.ListTools(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "mcp tools/list")
	assert.Contains(t, buf.String(), "mcp.method")
}
