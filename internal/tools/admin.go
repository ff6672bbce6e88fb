package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/hygeia-go/internal/cache"
	"github.com/raphaelgruber/hygeia-go/internal/metrics"
	"github.com/raphaelgruber/hygeia-go/internal/service"
)

// ClearCacheInput defines the input schema for the clear_cache tool.
type ClearCacheInput struct {
	AnalysisID string `json:"analysis_id,omitempty" jsonschema:"Analysis id to clear; every cache is cleared when omitted"`
}

// NewClearCacheHandler creates the clear_cache tool handler.
func NewClearCacheHandler(deps *Dependencies) mcp.ToolHandlerFor[ClearCacheInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ClearCacheInput) (
		*mcp.CallToolResult, any, error,
	) {
		removed := deps.Session.ClearCache(input.AnalysisID)
		return JSONResult(map[string]any{
			"analysis_id": input.AnalysisID,
			"removed":     removed,
		}), nil, nil
	}
}

// ListRunsInput defines the input schema for the list_runs tool.
type ListRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum runs to return, most recent first (default all)"`
}

// NewListRunsHandler creates the list_runs tool handler.
func NewListRunsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListRunsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListRunsInput) (
		*mcp.CallToolResult, any, error,
	) {
		runs := deps.Session.Runs().List()
		if input.Limit > 0 && len(runs) > input.Limit {
			runs = runs[:input.Limit]
		}
		if runs == nil {
			runs = []*service.Run{}
		}
		return JSONResult(runs), nil, nil
	}
}

// StatsInput defines the input schema for the server_stats tool.
type StatsInput struct{}

// StatsResult is the response from the server_stats tool.
type StatsResult struct {
	Metrics metrics.Snapshot `json:"metrics"`
	Caches  []cache.Stats    `json:"caches"`
	Runs    int              `json:"runs"`
}

// NewStatsHandler creates the server_stats tool handler.
func NewStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[StatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (
		*mcp.CallToolResult, any, error,
	) {
		return JSONResult(StatsResult{
			Metrics: deps.Session.Metrics().Snapshot(),
			Caches:  deps.Session.CacheStats(),
			Runs:    len(deps.Session.Runs().List()),
		}), nil, nil
	}
}
