// Package server provides the MCP server wrapper with lifecycle management.
package server

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Name is the implementation name reported to MCP clients.
const Name = "hygeia"

// instructions tells clients the order in which the tools are meant to be used.
const instructions = `Hygeia fits mixed graphical networks and explores them.
Typical flow: fit_network on a CSV (or load_results for an existing results.json),
then explore_network with a threshold and top_edges. Heavy analyses (bootnet, nct,
lasso) go through run_analysis; preview their clamped settings with
normalize_guardrails first. Results and derived metrics are cached per analysis_id;
clear_cache drops them.`

// Server wraps the MCP server with dependencies and lifecycle management.
type Server struct {
	mcp    *mcp.Server
	logger *slog.Logger
}

// New creates a new MCP server with the given version and logger.
func New(version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	impl := &mcp.Implementation{
		Name:    Name,
		Version: version,
	}

	return &Server{
		mcp:    mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions}),
		logger: logger,
	}
}

// Run serves on stdio and blocks until disconnect or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session over t without blocking. Used for
// in-process clients.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	s.logger.Debug("connecting in-process session")
	return s.mcp.Connect(ctx, t, nil)
}

// MCPServer returns the underlying MCP server for tool registration.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Setup adds middleware to the server. Tracing wraps logging so the logged
// duration excludes span export.
func (s *Server) Setup() {
	s.mcp.AddReceivingMiddleware(LoggingMiddleware(s.logger), TracingMiddleware())
}
