package tools

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/dataset"
	"github.com/raphaelgruber/hygeia-go/internal/engine"
	"github.com/raphaelgruber/hygeia-go/internal/explore"
	"github.com/raphaelgruber/hygeia-go/internal/guardrail"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/raphaelgruber/hygeia-go/internal/modelspec"
	"github.com/raphaelgruber/hygeia-go/internal/service"
)

// FitInput defines the input schema for the fit_network tool.
type FitInput struct {
	DataPath       string         `json:"data_path" jsonschema:"required,Path to the CSV dataset"`
	AnalysisID     string         `json:"analysis_id,omitempty" jsonschema:"Analysis id, generated when omitted"`
	Settings       map[string]any `json:"settings,omitempty" jsonschema:"Model settings (mgm, edge_mapping, visualization, ...)"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" jsonschema:"Engine timeout, server default when omitted"`
}

// FitResult summarizes a completed fit.
type FitResult struct {
	AnalysisID string           `json:"analysis_id"`
	Nodes      int              `json:"nodes"`
	Edges      int              `json:"edges"`
	ElapsedMs  int64            `json:"elapsed_ms"`
	Hashes     engine.Hashes    `json:"sha256"`
	Messages   []models.Message `json:"messages"`
	Workdir    string           `json:"workdir,omitempty"`
}

// NewFitHandler creates the fit_network tool handler. It builds schema and
// spec documents for the dataset, runs the engine and loads the results for
// explore_network.
func NewFitHandler(deps *Dependencies) mcp.ToolHandlerFor[FitInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input FitInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.DataPath == "" {
			return ErrorResult("data_path cannot be empty", "Provide a CSV file path"), nil, nil
		}
		data, err := dataset.ReadCSVFile(input.DataPath)
		if err != nil {
			return ErrorResult("Failed to read dataset", err.Error()), nil, nil
		}
		if n := data.MissingCells(); n > 0 {
			return ErrorResult("Dataset has missing values", "Remove or impute them; the engine aborts on missing data"), nil, nil
		}

		settings := modelspec.Default()
		if input.Settings != nil {
			raw, _ := json.Marshal(input.Settings)
			if settings, err = modelspec.Decode(raw); err != nil {
				return ErrorResult("Invalid settings", err.Error()), nil, nil
			}
		}

		prep, err := deps.Session.Prepare(data, service.PrepareInput{
			AnalysisID: input.AnalysisID,
			Settings:   settings,
		})
		if err != nil {
			return ErrorResult("Failed to build documents", err.Error()), nil, nil
		}

		run, err := deps.Session.Fit(ctx, service.FitInput{
			Data:    data,
			Schema:  prep.Schema,
			Spec:    prep.Spec,
			Timeout: time.Duration(input.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			deps.Logger.Error("fit_network failed", "analysis_id", prep.Spec.AnalysisID, "error", err)
			return engineFailure(err), nil, nil
		}

		result := FitResult{
			AnalysisID: run.Results.AnalysisID,
			Nodes:      len(run.Results.Nodes),
			Edges:      len(run.Results.Edges),
			ElapsedMs:  run.Process.Elapsed.Milliseconds(),
			Hashes:     run.Hashes,
			Messages:   run.Results.Messages,
			Workdir:    run.Workdir,
		}
		deps.Logger.Info("fit_network completed", "analysis_id", result.AnalysisID, "edges", result.Edges)
		return JSONResult(result), nil, nil
	}
}

// LoadResultsInput defines the input schema for the load_results tool.
type LoadResultsInput struct {
	Path string `json:"path" jsonschema:"required,Path to a results.json document"`
}

// NewLoadResultsHandler creates the load_results tool handler. The document
// must pass the results contract.
func NewLoadResultsHandler(deps *Dependencies) mcp.ToolHandlerFor[LoadResultsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input LoadResultsInput) (
		*mcp.CallToolResult, any, error,
	) {
		raw, err := os.ReadFile(input.Path)
		if err != nil {
			return ErrorResult("Failed to read results", err.Error()), nil, nil
		}
		if err := deps.Session.Validate(contract.KindResults, raw); err != nil {
			return ErrorResult("Results document is invalid", err.Error()), nil, nil
		}
		var results models.Results
		if err := json.Unmarshal(raw, &results); err != nil {
			return ErrorResult("Failed to decode results", err.Error()), nil, nil
		}
		deps.Session.LoadResults(&results)

		return JSONResult(map[string]any{
			"analysis_id": results.AnalysisID,
			"nodes":       len(results.Nodes),
			"edges":       len(results.Edges),
			"health":      guardrail.CheckHealth(len(results.Nodes), len(results.Edges)),
		}), nil, nil
	}
}

// ExploreInput defines the input schema for the explore_network tool.
type ExploreInput struct {
	AnalysisID         string   `json:"analysis_id" jsonschema:"required,Analysis id of fitted or loaded results"`
	Threshold          *float64 `json:"threshold,omitempty" jsonschema:"Minimum edge weight, default 0"`
	UseAbsoluteWeights *bool    `json:"use_absolute_weights,omitempty" jsonschema:"Compare |weight| to the threshold, default true"`
	TopEdges           string   `json:"top_edges,omitempty" jsonschema:"200, 500, 1000 or all; default 500"`
}

// NewExploreHandler creates the explore_network tool handler.
func NewExploreHandler(deps *Dependencies) mcp.ToolHandlerFor[ExploreInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ExploreInput) (
		*mcp.CallToolResult, any, error,
	) {
		cfg := explore.Default()
		if input.Threshold != nil {
			cfg.Threshold = *input.Threshold
		}
		if input.UseAbsoluteWeights != nil {
			cfg.UseAbsoluteWeights = *input.UseAbsoluteWeights
		}
		if input.TopEdges != "" {
			top, err := models.ParseTopEdges(input.TopEdges)
			if err != nil {
				return ErrorResult(err.Error(), topEdgesHint), nil, nil
			}
			cfg.TopEdges = top
		}

		out, err := deps.Session.Explore(ctx, input.AnalysisID, cfg)
		if err != nil {
			return exploreFailure(err), nil, nil
		}

		deps.Logger.Info("explore_network completed", "analysis_id", input.AnalysisID, "cached", out.Cached)
		return JSONResult(out), nil, nil
	}
}

// AnalysisInput defines the input schema for the run_analysis tool.
type AnalysisInput struct {
	Analysis       string         `json:"analysis" jsonschema:"required,Heavy analysis: bootnet, nct or lasso"`
	DataPath       string         `json:"data_path" jsonschema:"required,Path to the CSV dataset"`
	AnalysisID     string         `json:"analysis_id,omitempty" jsonschema:"Analysis id for the schema and spec"`
	Settings       map[string]any `json:"settings,omitempty" jsonschema:"Raw analysis settings, clamped by the guardrails"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" jsonschema:"Engine timeout, server default when omitted"`
}

// NewAnalysisHandler creates the run_analysis tool handler.
func NewAnalysisHandler(deps *Dependencies) mcp.ToolHandlerFor[AnalysisInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AnalysisInput) (
		*mcp.CallToolResult, any, error,
	) {
		analysis, err := guardrail.ParseAnalysis(input.Analysis)
		if err != nil {
			return ErrorResult(err.Error(), "Use bootnet, nct or lasso"), nil, nil
		}
		data, err := dataset.ReadCSVFile(input.DataPath)
		if err != nil {
			return ErrorResult("Failed to read dataset", err.Error()), nil, nil
		}

		var raw []byte
		if input.Settings != nil {
			raw, _ = json.Marshal(input.Settings)
		}
		settings, err := guardrail.DecodeSettings(analysis, raw)
		if err != nil {
			return ErrorResult("Invalid settings", err.Error()), nil, nil
		}

		areq := service.AnalysisRequest{
			Analysis: analysis,
			Data:     data,
			Settings: settings,
			Timeout:  time.Duration(input.TimeoutSeconds) * time.Second,
		}
		if analysis != guardrail.AnalysisLasso {
			// the dataset hash keeps repeated calls on one cache key
			analysisID := input.AnalysisID
			if analysisID == "" {
				if analysisID, err = data.Hash(); err != nil {
					return ErrorResult("Failed to hash dataset", err.Error()), nil, nil
				}
			}
			prep, err := deps.Session.Prepare(data, service.PrepareInput{
				AnalysisID: analysisID,
				Settings:   modelspec.Default(),
			})
			if err != nil {
				return ErrorResult("Failed to build documents", err.Error()), nil, nil
			}
			areq.Schema, areq.Spec = prep.Schema, prep.Spec
		}

		out, err := deps.Session.RunAnalysis(ctx, areq)
		if err != nil {
			deps.Logger.Error("run_analysis failed", "analysis", analysis, "error", err)
			return engineFailure(err), nil, nil
		}

		deps.Logger.Info("run_analysis completed", "analysis", analysis, "cached", out.Cached)
		return JSONResult(out), nil, nil
	}
}
