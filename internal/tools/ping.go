package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/hygeia-go/internal/service"
)

// PingInput defines the input schema for the ping tool.
type PingInput struct {
	Echo   string `json:"echo,omitempty" jsonschema:"Text to echo back"`
	Status bool   `json:"status,omitempty" jsonschema:"Report loaded analyses and active runs instead of pong"`
}

// PingStatus is returned by ping when status is requested.
type PingStatus struct {
	Status     string   `json:"status"`
	Engine     string   `json:"engine,omitempty"`
	Analyses   []string `json:"analyses"`
	ActiveRuns int      `json:"active_runs"`
}

// NewPingHandler creates a ping tool handler.
// Responds with "pong", echoes the input or reports session status.
func NewPingHandler(deps *Dependencies) mcp.ToolHandlerFor[PingInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input PingInput) (*mcp.CallToolResult, any, error) {
		if deps != nil && deps.Logger != nil {
			deps.Logger.Debug("ping tool called", "echo", input.Echo, "status", input.Status)
		}
		if input.Status && deps != nil && deps.Session != nil {
			st := PingStatus{Status: "ok", Analyses: deps.Session.Analyses()}
			if deps.Config != nil {
				st.Engine = deps.Config.EngineCommand
			}
			for _, r := range deps.Session.Runs().List() {
				if r.Status == service.RunStatusPending || r.Status == service.RunStatusRunning {
					st.ActiveRuns++
				}
			}
			return JSONResult(st), nil, nil
		}
		if input.Echo != "" {
			return TextResult(input.Echo), nil, nil
		}
		return TextResult("pong"), nil, nil
	}
}
