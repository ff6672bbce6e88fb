// Package engine runs the external statistical engine as a subprocess.
//
// The bridge validates its inputs, materializes them into a private working
// directory, invokes the engine with a timeout and validates what comes back.
// Failures are reported as typed errors carrying the captured process output.
// Nothing is retried.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raphaelgruber/hygeia-go/internal/cache"
	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/dataset"
	"github.com/raphaelgruber/hygeia-go/internal/models"
)

var tracer = otel.Tracer("hygeia.engine")

// Artifact file names inside a working directory.
const (
	DataFile    = "data.csv"
	SchemaFile  = "schema.json"
	SpecFile    = "model_spec.json"
	ResultsFile = "results.json"

	workdirPrefix = "hygeia_graph_"
)

// Config locates the engine.
type Config struct {
	// Command is the executable, e.g. "Rscript".
	Command string
	// Script is passed as the first argument when set, e.g. "r/run_mgm.R".
	Script string
	// AnalysisScripts maps heavy analyses to their scripts.
	AnalysisScripts map[string]string
	// WorkRoot is where working directories are created. Empty means the
	// system temp dir.
	WorkRoot       string
	MaxOutputBytes int
}

// Bridge executes engine runs. It is safe for concurrent use; every run owns
// its own working directory and subprocess.
type Bridge struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Bridge.
func New(cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	return &Bridge{cfg: cfg, logger: logger}
}

// RunInput is one engine invocation.
type RunInput struct {
	Data    *dataset.Dataset
	Schema  *models.SchemaDocument
	Spec    *models.ModelSpec
	Timeout time.Duration
	// Debug passes --debug instead of --quiet to the engine.
	Debug bool
	// KeepWorkdir leaves the working directory on disk for inspection.
	KeepWorkdir bool
}

// Hashes are SHA-256 digests of the materialized input artifacts.
type Hashes struct {
	Data   string `json:"data"`
	Schema string `json:"schema"`
	Spec   string `json:"spec"`
}

// Run is a successful engine invocation.
type Run struct {
	Results *models.Results `json:"results"`
	Hashes  Hashes          `json:"sha256"`
	Process Process         `json:"process"`
	// Workdir is set only when the directory was kept.
	Workdir string `json:"workdir,omitempty"`
}

// EncodeDocument is the byte form in which contract documents are handed to
// the engine. Input hashes are computed over these bytes.
func EncodeDocument(doc any) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

type artifacts struct {
	data, schema, spec string
	hashes             Hashes
}

func writeArtifacts(dir string, data *dataset.Dataset, schema, spec any) (artifacts, error) {
	a := artifacts{
		data:   filepath.Join(dir, DataFile),
		schema: filepath.Join(dir, SchemaFile),
		spec:   filepath.Join(dir, SpecFile),
	}

	csvBytes, err := data.Bytes()
	if err != nil {
		return a, fmt.Errorf("serialize dataset: %w", err)
	}
	schemaBytes, err := EncodeDocument(schema)
	if err != nil {
		return a, fmt.Errorf("serialize schema: %w", err)
	}
	specBytes, err := EncodeDocument(spec)
	if err != nil {
		return a, fmt.Errorf("serialize spec: %w", err)
	}

	for path, content := range map[string][]byte{a.data: csvBytes, a.schema: schemaBytes, a.spec: specBytes} {
		if err := os.WriteFile(path, content, 0o600); err != nil {
			return a, fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
	}

	a.hashes = Hashes{
		Data:   cache.SHA256Hex(csvBytes),
		Schema: cache.SHA256Hex(schemaBytes),
		Spec:   cache.SHA256Hex(specBytes),
	}
	return a, nil
}

// validateInputs checks everything that can be checked without spawning.
func validateInputs(data *dataset.Dataset, schema *models.SchemaDocument, spec *models.ModelSpec) error {
	if data == nil || schema == nil || spec == nil {
		return errors.New("engine input: data, schema and spec are required")
	}
	if err := contract.Validate(contract.KindSchema, schema); err != nil {
		return fmt.Errorf("engine input: %w", err)
	}
	if err := contract.Validate(contract.KindModelSpec, spec); err != nil {
		return fmt.Errorf("engine input: %w", err)
	}
	return nil
}

func (b *Bridge) command(script string, args []string) (string, []string) {
	if script == "" {
		return b.cfg.Command, args
	}
	return b.cfg.Command, append([]string{script}, args...)
}

func (b *Bridge) makeWorkdir(prefix string) (string, error) {
	if b.cfg.WorkRoot != "" {
		if err := os.MkdirAll(b.cfg.WorkRoot, 0o755); err != nil {
			return "", fmt.Errorf("create work root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(b.cfg.WorkRoot, prefix)
	if err != nil {
		return "", fmt.Errorf("create workdir: %w", err)
	}
	return dir, nil
}

func (b *Bridge) cleanup(dir string, keep bool) {
	if keep {
		b.logger.Info("keeping engine workdir", "workdir", dir)
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		b.logger.Warn("failed to remove engine workdir", "workdir", dir, "error", err)
	}
}

// Run executes one engine fit. Invalid input fails before any subprocess is
// spawned. On success the results document has passed contract validation.
func (b *Bridge) Run(ctx context.Context, in RunInput) (*Run, error) {
	if err := validateInputs(in.Data, in.Schema, in.Spec); err != nil {
		return nil, err
	}

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	analysisID := in.Spec.AnalysisID

	ctx, span := tracer.Start(ctx, "engine.Run", trace.WithAttributes(
		attribute.String("analysis_id", analysisID),
		attribute.Int("rows", in.Data.NumRows()),
		attribute.Int("variables", len(in.Schema.Variables)),
		attribute.String("timeout", timeout.String()),
	))
	defer span.End()

	run, err := b.run(ctx, in, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("exit_code", run.Process.ExitCode),
		attribute.Int("edges", len(run.Results.Edges)),
	)
	span.SetStatus(codes.Ok, "")
	return run, nil
}

func (b *Bridge) run(ctx context.Context, in RunInput, timeout time.Duration) (*Run, error) {
	analysisID := in.Spec.AnalysisID

	workdir, err := b.makeWorkdir(workdirPrefix)
	if err != nil {
		return nil, err
	}
	defer b.cleanup(workdir, in.KeepWorkdir)

	art, err := writeArtifacts(workdir, in.Data, in.Schema, in.Spec)
	if err != nil {
		return nil, err
	}
	resultsPath := filepath.Join(workdir, ResultsFile)

	args := []string{
		"--data", art.data,
		"--schema", art.schema,
		"--spec", art.spec,
		"--out", resultsPath,
	}
	if in.Debug {
		args = append(args, "--debug")
	} else {
		args = append(args, "--quiet")
	}

	name, argv := b.command(b.cfg.Script, args)
	b.logger.Info("engine run started",
		"analysis_id", analysisID,
		"workdir", workdir,
		"timeout", timeout,
	)

	res := execute(ctx, b.logger, workdir, b.cfg.MaxOutputBytes, timeout, name, argv...)
	proc := res.process

	keptDir := ""
	if in.KeepWorkdir {
		keptDir = workdir
	}

	switch {
	case res.timedOut:
		b.logger.Warn("engine run timed out",
			"analysis_id", analysisID,
			"timeout", timeout,
			"duration_ms", proc.Elapsed.Milliseconds(),
		)
		return nil, &TimeoutError{Timeout: timeout, Process: proc, Workdir: keptDir}
	case res.err != nil:
		b.logger.Error("engine run aborted", "analysis_id", analysisID, "error", res.err)
		return nil, &ProcessError{Cause: res.err, Process: proc, Workdir: keptDir}
	}

	raw, err := os.ReadFile(resultsPath)
	if errors.Is(err, fs.ErrNotExist) {
		b.logger.Error("engine produced no results",
			"analysis_id", analysisID,
			"exit_code", proc.ExitCode,
		)
		return nil, &OutputMissingError{Path: ResultsFile, Process: proc, Workdir: keptDir}
	}
	if err != nil {
		return nil, &ProcessError{Cause: fmt.Errorf("read results: %w", err), Process: proc, Workdir: keptDir}
	}

	if proc.ExitCode != 0 {
		b.logger.Error("engine exited non-zero",
			"analysis_id", analysisID,
			"exit_code", proc.ExitCode,
		)
		return nil, &ProcessError{Process: proc, Workdir: keptDir}
	}

	results, err := decodeResults(raw)
	if err != nil {
		b.logger.Error("engine results rejected", "analysis_id", analysisID, "error", err)
		return nil, &OutputInvalidError{Path: ResultsFile, Cause: err, Process: proc, Workdir: keptDir}
	}

	b.logger.Info("engine run finished",
		"analysis_id", analysisID,
		"exit_code", proc.ExitCode,
		"duration_ms", proc.Elapsed.Milliseconds(),
		"nodes", len(results.Nodes),
		"edges", len(results.Edges),
	)

	return &Run{
		Results: results,
		Hashes:  art.hashes,
		Process: proc,
		Workdir: keptDir,
	}, nil
}

// decodeResults validates raw against the results contract before decoding
// it into the typed document.
func decodeResults(raw []byte) (*models.Results, error) {
	if err := contract.Validate(contract.KindResults, raw); err != nil {
		return nil, err
	}
	var results models.Results
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if results.Messages == nil {
		results.Messages = []models.Message{}
	}
	return &results, nil
}
