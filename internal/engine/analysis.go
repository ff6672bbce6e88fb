package engine

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raphaelgruber/hygeia-go/internal/dataset"
	"github.com/raphaelgruber/hygeia-go/internal/guardrail"
	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// ErrNoScript is returned when no script is configured for an analysis.
var ErrNoScript = errors.New("no script configured for analysis")

// AnalysisInput is one heavy-analysis invocation. Settings must already be
// normalized by the guardrail package and be one of guardrail.BootnetSettings,
// guardrail.NCTSettings or guardrail.LassoSettings.
type AnalysisInput struct {
	Analysis guardrail.Analysis
	Data     *dataset.Dataset
	// Schema and Spec are required for bootnet and nct.
	Schema      *models.SchemaDocument
	Spec        *models.ModelSpec
	Settings    any
	Seed        int
	Timeout     time.Duration
	Debug       bool
	KeepWorkdir bool
}

// Table is a CSV table produced by an analysis.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// AnalysisRun is a successful heavy-analysis invocation.
type AnalysisRun struct {
	Analysis guardrail.Analysis `json:"analysis"`
	Meta     map[string]any     `json:"meta"`
	Tables   map[string]Table   `json:"tables"`
	Process  Process            `json:"process"`
	Workdir  string             `json:"workdir,omitempty"`
}

// TableNames returns the table names in sorted order.
func (r *AnalysisRun) TableNames() []string {
	names := make([]string, 0, len(r.Tables))
	for n := range r.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func analysisArgs(a guardrail.Analysis, settings any, seed int) ([]string, error) {
	switch s := settings.(type) {
	case guardrail.BootnetSettings:
		if a != guardrail.AnalysisBootnet {
			break
		}
		caseMin, caseMax := guardrail.DefaultCaseMin, guardrail.DefaultCaseMax
		if s.CaseMin != nil {
			caseMin = *s.CaseMin
		}
		if s.CaseMax != nil {
			caseMax = *s.CaseMax
		}
		return []string{
			"--n_boots_np", strconv.Itoa(s.NBootsNP),
			"--n_boots_case", strconv.Itoa(s.NBootsCase),
			"--n_cores", strconv.Itoa(s.NCores),
			"--caseMin", formatFloat(caseMin),
			"--caseMax", formatFloat(caseMax),
			"--caseN", strconv.Itoa(s.CaseN),
			"--cor_level", formatFloat(s.CorLevel),
		}, nil

	case guardrail.NCTSettings:
		if a != guardrail.AnalysisNCT {
			break
		}
		if s.GroupVar == "" {
			return nil, errors.New("nct: group_var is required")
		}
		edgeTests := "0"
		if s.EdgeTests {
			edgeTests = "1"
		}
		return []string{
			"--group_var", s.GroupVar,
			"--permutations", strconv.Itoa(s.Permutations),
			"--n_cores", strconv.Itoa(s.NCores),
			"--edge_tests", edgeTests,
			"--mode", string(s.Mode),
			"--seed", strconv.Itoa(seed),
		}, nil

	case guardrail.LassoSettings:
		if a != guardrail.AnalysisLasso {
			break
		}
		if s.Target == "" {
			return nil, errors.New("lasso: target is required")
		}
		alpha := guardrail.DefaultLassoAlpha
		if s.Alpha != nil {
			alpha = *s.Alpha
		}
		return []string{
			"--target", s.Target,
			"--nfolds", strconv.Itoa(s.NFolds),
			"--max_features", strconv.Itoa(s.MaxFeatures),
			"--alpha", formatFloat(alpha),
			"--seed", strconv.Itoa(seed),
		}, nil
	}
	return nil, fmt.Errorf("settings %T do not match analysis %q", settings, a)
}

// RunAnalysis executes a heavy analysis script. The dataset must be complete;
// missing values are rejected before anything is spawned.
func (b *Bridge) RunAnalysis(ctx context.Context, in AnalysisInput) (*AnalysisRun, error) {
	script, ok := b.cfg.AnalysisScripts[string(in.Analysis)]
	if !ok || script == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoScript, in.Analysis)
	}
	if in.Data == nil {
		return nil, errors.New("analysis input: data is required")
	}
	if n := in.Data.MissingCells(); n > 0 {
		return nil, fmt.Errorf("%w: %d missing cells; %s requires complete data", ErrMissingValues, n, in.Analysis)
	}
	if in.Analysis != guardrail.AnalysisLasso {
		if err := validateInputs(in.Data, in.Schema, in.Spec); err != nil {
			return nil, err
		}
	}
	extra, err := analysisArgs(in.Analysis, in.Settings, in.Seed)
	if err != nil {
		return nil, fmt.Errorf("analysis input: %w", err)
	}

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, span := tracer.Start(ctx, "engine.RunAnalysis", trace.WithAttributes(
		attribute.String("analysis", string(in.Analysis)),
		attribute.Int("rows", in.Data.NumRows()),
	))
	defer span.End()

	run, err := b.runAnalysis(ctx, in, extra, script, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return run, nil
}

func (b *Bridge) runAnalysis(ctx context.Context, in AnalysisInput, extra []string, script string, timeout time.Duration) (*AnalysisRun, error) {
	workdir, err := b.makeWorkdir("hygeia_" + string(in.Analysis) + "_")
	if err != nil {
		return nil, err
	}
	defer b.cleanup(workdir, in.KeepWorkdir)

	outDir := filepath.Join(workdir, string(in.Analysis)+"_out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	args := []string{}
	if in.Analysis == guardrail.AnalysisLasso {
		csvBytes, err := in.Data.Bytes()
		if err != nil {
			return nil, fmt.Errorf("serialize dataset: %w", err)
		}
		dataPath := filepath.Join(workdir, DataFile)
		if err := os.WriteFile(dataPath, csvBytes, 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", DataFile, err)
		}
		args = append(args, "--data", dataPath)
	} else {
		art, err := writeArtifacts(workdir, in.Data, in.Schema, in.Spec)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data", art.data, "--schema", art.schema, "--spec", art.spec)
	}
	args = append(args, "--out_dir", outDir)
	args = append(args, extra...)
	if !in.Debug {
		args = append(args, "--quiet")
	}

	keptDir := ""
	if in.KeepWorkdir {
		keptDir = workdir
	}

	name, argv := b.command(script, args)
	b.logger.Info("analysis started", "analysis", in.Analysis, "workdir", workdir, "timeout", timeout)

	res := execute(ctx, b.logger, workdir, b.cfg.MaxOutputBytes, timeout, name, argv...)
	proc := res.process
	switch {
	case res.timedOut:
		b.logger.Warn("analysis timed out", "analysis", in.Analysis, "timeout", timeout)
		return nil, &TimeoutError{Timeout: timeout, Process: proc, Workdir: keptDir}
	case res.err != nil:
		return nil, &ProcessError{Cause: res.err, Process: proc, Workdir: keptDir}
	}

	metaName := string(in.Analysis) + "_meta.json"
	rawMeta, err := os.ReadFile(filepath.Join(outDir, metaName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &OutputMissingError{Path: metaName, Process: proc, Workdir: keptDir}
	}
	if err != nil {
		return nil, &ProcessError{Cause: fmt.Errorf("read %s: %w", metaName, err), Process: proc, Workdir: keptDir}
	}

	var meta map[string]any
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, &OutputInvalidError{Path: metaName, Cause: err, Process: proc, Workdir: keptDir}
	}

	if proc.ExitCode != 0 {
		cause := fmt.Errorf("%s exited with code %d", in.Analysis, proc.ExitCode)
		if msg := firstMetaMessage(meta); msg != "" {
			cause = fmt.Errorf("%w: %s", cause, msg)
		}
		b.logger.Error("analysis failed", "analysis", in.Analysis, "exit_code", proc.ExitCode)
		return nil, &ProcessError{Cause: cause, Process: proc, Workdir: keptDir}
	}

	tables, err := readTables(outDir)
	if err != nil {
		return nil, &OutputInvalidError{Path: filepath.Base(outDir), Cause: err, Process: proc, Workdir: keptDir}
	}

	b.logger.Info("analysis finished",
		"analysis", in.Analysis,
		"duration_ms", proc.Elapsed.Milliseconds(),
		"tables", len(tables),
	)
	return &AnalysisRun{
		Analysis: in.Analysis,
		Meta:     meta,
		Tables:   tables,
		Process:  proc,
		Workdir:  keptDir,
	}, nil
}

func firstMetaMessage(meta map[string]any) string {
	msgs, _ := meta["messages"].([]any)
	if len(msgs) == 0 {
		return ""
	}
	first, _ := msgs[0].(map[string]any)
	s, _ := first["message"].(string)
	return s
}

// readTables loads every CSV file in dir, keyed by file name without extension.
func readTables(dir string) (map[string]Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	tables := make(map[string]Table)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		t, err := readTable(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		tables[strings.TrimSuffix(e.Name(), ".csv")] = t
	}
	return tables, nil
}

func readTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return Table{Columns: []string{}, Rows: [][]string{}}, nil
	}
	return Table{Columns: records[0], Rows: records[1:]}, nil
}
