package tools

import (
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/engine"
	"github.com/raphaelgruber/hygeia-go/internal/explore"
	"github.com/raphaelgruber/hygeia-go/internal/service"
)

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
// Returns IsError=true so the client can see the error and self-correct.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// JSONResult creates a success result holding v as indented JSON.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult("Failed to encode result", err.Error())
	}
	return TextResult(string(data))
}

const topEdgesHint = "Use 200, 500, 1000 or all"

// engineFailure maps engine errors to a tool error with a recovery hint.
func engineFailure(err error) *mcp.CallToolResult {
	var ve *contract.ValidationError
	switch {
	case errors.As(err, &ve) && !errors.Is(err, engine.ErrOutputInvalid):
		return ErrorResult("Input documents are invalid: "+err.Error(), "Fix the settings and retry")
	case errors.Is(err, engine.ErrTimeout):
		return ErrorResult(err.Error(), "Increase timeout_seconds or reduce the problem size")
	case errors.Is(err, engine.ErrProcessFailed):
		return ErrorResult(err.Error(), "Check the engine command and script paths")
	case errors.Is(err, engine.ErrOutputMissing), errors.Is(err, engine.ErrOutputInvalid):
		return ErrorResult(err.Error(), "Check the engine installation and its stderr")
	case errors.Is(err, engine.ErrMissingValues):
		return ErrorResult(err.Error(), "Remove or impute rows with missing values")
	default:
		return ErrorResult(err.Error(), "")
	}
}

// exploreFailure maps Session.Explore errors to a tool error with a hint.
func exploreFailure(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, service.ErrUnknownAnalysis):
		return ErrorResult(err.Error(), "Run fit_network or load_results first")
	case errors.Is(err, explore.ErrInvalidTopEdges):
		return ErrorResult(err.Error(), topEdgesHint)
	case errors.Is(err, explore.ErrNegativeThreshold):
		return ErrorResult(err.Error(), "Use a threshold of 0 or more")
	}
	return ErrorResult("Exploration failed", err.Error())
}
