package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/hygeia-go/internal/guardrail"
)

// GuardrailsInput defines the input schema for the normalize_guardrails tool.
type GuardrailsInput struct {
	Analysis string         `json:"analysis" jsonschema:"required,Heavy analysis: bootnet, nct or lasso"`
	Settings map[string]any `json:"settings,omitempty" jsonschema:"Raw settings for the analysis"`
	Unlocked bool           `json:"unlocked,omitempty" jsonschema:"Allow values up to the hard ceilings"`
	Rows     int            `json:"rows,omitempty" jsonschema:"Dataset rows, used by the lasso high-dimension check"`
	Cols     int            `json:"cols,omitempty" jsonschema:"Dataset columns, used by the lasso high-dimension check"`
}

// GuardrailsResult is the response from the normalize_guardrails tool.
type GuardrailsResult struct {
	Analysis       guardrail.Analysis  `json:"analysis"`
	Settings       any                 `json:"settings"`
	Warnings       []guardrail.Warning `json:"warnings"`
	RequiresUnlock bool                `json:"requires_unlock"`
	Markdown       string              `json:"markdown,omitempty"`
}

type unlockChecker interface{ RequiresUnlock() bool }

// NewGuardrailsHandler creates the normalize_guardrails tool handler.
func NewGuardrailsHandler(deps *Dependencies) mcp.ToolHandlerFor[GuardrailsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GuardrailsInput) (
		*mcp.CallToolResult, any, error,
	) {
		analysis, err := guardrail.ParseAnalysis(input.Analysis)
		if err != nil {
			return ErrorResult(err.Error(), "Use bootnet, nct or lasso"), nil, nil
		}

		var raw []byte
		if input.Settings != nil {
			raw, _ = json.Marshal(input.Settings)
		}
		settings, err := guardrail.DecodeSettings(analysis, raw)
		if err != nil {
			return ErrorResult("Invalid settings", err.Error()), nil, nil
		}

		out, ws, err := guardrail.Normalize(analysis, settings, input.Unlocked, input.Rows, input.Cols)
		if err != nil {
			return ErrorResult("Invalid settings", err.Error()), nil, nil
		}
		if ws == nil {
			ws = []guardrail.Warning{}
		}

		result := GuardrailsResult{
			Analysis: analysis,
			Settings: out,
			Warnings: ws,
			Markdown: guardrail.RenderMarkdown(ws),
		}
		if c, ok := settings.(unlockChecker); ok {
			result.RequiresUnlock = c.RequiresUnlock()
		}

		deps.Logger.Info("normalize_guardrails completed", "analysis", analysis, "warnings", len(ws))
		return JSONResult(result), nil, nil
	}
}
