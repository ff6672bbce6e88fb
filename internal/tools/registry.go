package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Test tool - responds with pong or echoes input",
	}, NewPingHandler(deps))

	// Contracts
	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_contract",
		Description: "Validate a schema, model_spec or results document against its JSON contract",
	}, NewValidateHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "normalize_guardrails",
		Description: "Clamp bootnet, nct or lasso settings into safe bounds and report warnings",
	}, NewGuardrailsHandler(deps))

	// Engine
	mcp.AddTool(server, &mcp.Tool{
		Name:        "fit_network",
		Description: "Fit a mixed graphical model on a CSV dataset via the external engine",
	}, NewFitHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_results",
		Description: "Load an existing results.json document for exploration",
	}, NewLoadResultsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_analysis",
		Description: "Run a heavy analysis (bootnet, nct, lasso) with guardrailed settings",
	}, NewAnalysisHandler(deps))

	// Derived metrics
	mcp.AddTool(server, &mcp.Tool{
		Name:        "explore_network",
		Description: "Filter edges and compute centrality, bridge metrics and the backbone for loaded results",
	}, NewExploreHandler(deps))

	// Administration
	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cache",
		Description: "Clear cached derived metrics and analysis runs",
	}, NewClearCacheHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List recent engine runs with status and exit code",
	}, NewListRunsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "server_stats",
		Description: "Report operation timings and cache statistics",
	}, NewStatsHandler(deps))
}
