package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/hygeia-go/internal/contract"
)

// ValidateInput defines the input schema for the validate_contract tool.
type ValidateInput struct {
	Kind     string         `json:"kind" jsonschema:"required,Contract kind: schema, model_spec or results"`
	Document map[string]any `json:"document,omitempty" jsonschema:"Document to validate"`
	Path     string         `json:"path,omitempty" jsonschema:"Path to a JSON document, used when document is omitted"`
}

// ValidateResult is the response from the validate_contract tool.
type ValidateResult struct {
	Kind   contract.Kind         `json:"kind"`
	Valid  bool                  `json:"valid"`
	Errors []contract.FieldError `json:"errors"`
}

// NewValidateHandler creates the validate_contract tool handler.
// A contract violation is a successful call with valid=false.
func NewValidateHandler(deps *Dependencies) mcp.ToolHandlerFor[ValidateInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ValidateInput) (
		*mcp.CallToolResult, any, error,
	) {
		kind, err := contract.ParseKind(input.Kind)
		if err != nil {
			return ErrorResult(err.Error(), "Use schema, model_spec or results"), nil, nil
		}

		var doc any
		switch {
		case input.Document != nil:
			doc = input.Document
		case input.Path != "":
			raw, err := os.ReadFile(input.Path)
			if err != nil {
				return ErrorResult("Failed to read document", err.Error()), nil, nil
			}
			doc = json.RawMessage(raw)
		default:
			return ErrorResult("No document given", "Provide document or path"), nil, nil
		}

		result := ValidateResult{Kind: kind, Valid: true, Errors: []contract.FieldError{}}
		if err := deps.Session.Validate(kind, doc); err != nil {
			var ve *contract.ValidationError
			if !errors.As(err, &ve) {
				return ErrorResult("Validation failed", err.Error()), nil, nil
			}
			result.Valid = false
			result.Errors = ve.Errors
		}

		deps.Logger.Info("validate_contract completed", "kind", kind, "valid", result.Valid, "errors", len(result.Errors))
		return JSONResult(result), nil, nil
	}
}
