package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.maxLen))
	}
}

func TestToolNameWithoutRequest(t *testing.T) {
	assert.Empty(t, toolName("tools/call", nil))
	assert.Empty(t, toolName("tools/list", nil))
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ok := func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		return &mcp.CallToolResult{IsError: true}, nil
	}
	failing := func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		return nil, errors.New("boom")
	}

	_, err := LoggingMiddleware(logger)(ok)(context.Background(), "tools/call", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "request completed")
	assert.Contains(t, buf.String(), "tool_error=true")

	buf.Reset()
	_, err = LoggingMiddleware(logger)(failing)(context.Background(), "tools/call", nil)
	require.Error(t, err)
	line := buf.String()
	assert.True(t, strings.Contains(line, "request failed") && strings.Contains(line, "error=boom"), line)
}
