package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/hygeia-go/internal/config"
	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/dataset"
	"github.com/raphaelgruber/hygeia-go/internal/engine"
	"github.com/raphaelgruber/hygeia-go/internal/explore"
	"github.com/raphaelgruber/hygeia-go/internal/guardrail"
	"github.com/raphaelgruber/hygeia-go/internal/metrics"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/raphaelgruber/hygeia-go/internal/modelspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangle(analysisID string) *models.Results {
	edge := func(s, t string, w float64) models.Edge {
		return models.Edge{Source: s, Target: t, Weight: w, Sign: models.SignOf(w, 0)}
	}
	return &models.Results{
		ResultVersion: "0.1.0",
		AnalysisID:    analysisID,
		Status:        models.StatusSuccess,
		Nodes:         []models.Node{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		Edges:         []models.Edge{edge("A", "B", 0.8), edge("A", "C", -0.2)},
		Messages:      []models.Message{},
	}
}

func newSession(t *testing.T, bridge *engine.Bridge) *Session {
	t.Helper()
	s, err := NewSession(Options{Bridge: bridge, CacheCapacity: 8})
	require.NoError(t, err)
	return s
}

func TestExploreComputesOnceAndCaches(t *testing.T) {
	s := newSession(t, nil)
	s.LoadResults(triangle("an-1"))

	first, err := s.Explore(context.Background(), "an-1", explore.Default())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.InDelta(t, 1.0, first.Derived.NodeMetrics.StrengthAbs["A"], 1e-12)
	assert.InDelta(t, 0.6, first.Derived.NodeMetrics.ExpectedInfluence["A"], 1e-12)
	assert.InDelta(t, -0.2, first.Derived.NodeMetrics.ExpectedInfluence["C"], 1e-12)
	assert.NotNil(t, first.Warnings)

	second, err := s.Explore(context.Background(), "an-1", explore.Default())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Same(t, first.Derived, second.Derived)
	assert.Equal(t, first.Hash, second.Hash)

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Operations[metrics.OpDerive].Count)
	assert.Equal(t, int64(1), snap.Operations[metrics.OpCacheHit].Count)
}

func TestExploreNormalizesThreshold(t *testing.T) {
	s := newSession(t, nil)
	s.LoadResults(triangle("an-1"))

	cfg := explore.Default()
	cfg.Threshold = 5
	out, err := s.Explore(context.Background(), "an-1", cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.8, out.Config.Threshold, "clamped to the largest weight")

	cfg.Threshold = -1
	_, err = s.Explore(context.Background(), "an-1", cfg)
	assert.ErrorIs(t, err, explore.ErrNegativeThreshold)
}

func TestExploreUnknownAnalysis(t *testing.T) {
	s := newSession(t, nil)
	_, err := s.Explore(context.Background(), "missing", explore.Default())
	assert.ErrorIs(t, err, ErrUnknownAnalysis)
}

func TestClearCacheAndReload(t *testing.T) {
	s := newSession(t, nil)
	s.LoadResults(triangle("an-1"))
	s.LoadResults(triangle("an-2"))
	assert.Equal(t, []string{"an-1", "an-2"}, s.Analyses())

	cfgs := []models.ExploreConfig{explore.Default(), {Threshold: 0.5, UseAbsoluteWeights: true, TopEdges: 200}}
	for _, id := range []string{"an-1", "an-2"} {
		for _, cfg := range cfgs {
			_, err := s.Explore(context.Background(), id, cfg)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 4, s.CacheStats()[0].Entries)

	removed := s.ClearCache("an-1")
	assert.Equal(t, 2, removed["derived"])
	for _, cfg := range cfgs {
		out, err := s.Explore(context.Background(), "an-1", cfg)
		require.NoError(t, err)
		assert.False(t, out.Cached)
	}

	// reloading results invalidates what was derived from the old ones
	s.LoadResults(triangle("an-2"))
	out, err := s.Explore(context.Background(), "an-2", explore.Default())
	require.NoError(t, err)
	assert.False(t, out.Cached)

	removed = s.ClearCache("")
	assert.Equal(t, 3, removed["derived"])
	assert.Zero(t, s.CacheStats()[0].Entries)
}

func TestExploreConcurrentSharesComputation(t *testing.T) {
	s := newSession(t, nil)
	s.LoadResults(triangle("an-1"))

	var wg sync.WaitGroup
	results := make([]*Exploration, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.Explore(context.Background(), "an-1", explore.Default())
			assert.NoError(t, err)
			results[i] = out
		}()
	}
	wg.Wait()
	for _, r := range results[1:] {
		assert.Same(t, results[0].Derived, r.Derived)
	}
}

func mustDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New([]string{"Age", "Group"}, [][]string{
		{"31", "a"}, {"45", "b"}, {"28", "a"}, {"52", "b"},
	})
	require.NoError(t, err)
	return ds
}

func TestPrepare(t *testing.T) {
	s := newSession(t, nil)
	ds := mustDataset(t)

	prep, err := s.Prepare(ds, PrepareInput{AnalysisID: "an-9", Settings: modelspec.Default()})
	require.NoError(t, err)
	assert.Equal(t, "an-9", prep.Schema.AnalysisID)
	assert.Equal(t, "an-9", prep.Spec.AnalysisID)
	assert.Len(t, prep.Spec.Input.SchemaSHA256, 64)
	assert.Len(t, prep.Spec.Input.DataSHA256, 64)
	require.NoError(t, contract.Validate(contract.KindModelSpec, prep.Spec))

	generated, err := s.Prepare(ds, PrepareInput{Settings: modelspec.Default()})
	require.NoError(t, err)
	assert.Len(t, generated.Spec.AnalysisID, 36)
	assert.Equal(t, generated.Schema.AnalysisID, generated.Spec.AnalysisID)
}

const stubResults = `{
  "result_version": "0.1.0",
  "analysis_id": "%s",
  "status": "success",
  "engine": {"name": "R.mgm"},
  "nodes": [{"id": "age"}, {"id": "group"}],
  "edges": [{"source": "age", "target": "group", "weight": 0.3, "sign": "positive",
    "block_summary": {"n_params": 1, "l2_norm": 0.3, "mean": 0.3, "max": 0.3, "min": 0.3, "max_abs": 0.3}}]
}`

// stubEngine writes a script that appends a line to calls on every
// invocation and then runs body.
func stubEngine(t *testing.T, body string) (script, calls string) {
	t.Helper()
	dir := t.TempDir()
	script = filepath.Join(dir, "engine.sh")
	calls = filepath.Join(dir, "calls")
	content := fmt.Sprintf(`#!/bin/sh
echo call >> %s
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --out|--out_dir) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
%s`, calls, body)
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))
	return script, calls
}

func countCalls(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "call")
}

func TestFitLoadsResults(t *testing.T) {
	script, calls := stubEngine(t, "cat > \"$out\" <<'EOF'\n"+fmt.Sprintf(stubResults, "an-fit")+"\nEOF\n")
	bridge := engine.New(engine.Config{Command: "/bin/sh", Script: script, WorkRoot: t.TempDir()}, nil)
	s := newSession(t, bridge)

	prep, err := s.Prepare(mustDataset(t), PrepareInput{AnalysisID: "an-fit", Settings: modelspec.Default()})
	require.NoError(t, err)

	var started *Run
	run, err := s.Fit(context.Background(), FitInput{
		Data:    mustDataset(t),
		Schema:  prep.Schema,
		Spec:    prep.Spec,
		Timeout: 10 * time.Second,
		OnStart: func(r *Run) { started = r },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countCalls(t, calls))
	require.NotNil(t, started)

	_, ok := s.Results("an-fit")
	assert.True(t, ok)
	assert.Equal(t, "an-fit", run.Results.AnalysisID)

	runs := s.Runs().List()
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 1.0, s.Runs().Get(started.ID).Fraction())

	out, err := s.Explore(context.Background(), "an-fit", explore.Default())
	require.NoError(t, err)
	assert.InDelta(t, 0.3, out.Derived.NodeMetrics.StrengthAbs["age"], 1e-12)
}

func TestFitFailureIsTracked(t *testing.T) {
	script, _ := stubEngine(t, "echo 'no output' >&2\nexit 4\n")
	bridge := engine.New(engine.Config{Command: "/bin/sh", Script: script, WorkRoot: t.TempDir()}, nil)
	s := newSession(t, bridge)

	prep, err := s.Prepare(mustDataset(t), PrepareInput{AnalysisID: "an-x", Settings: modelspec.Default()})
	require.NoError(t, err)

	_, err = s.Fit(context.Background(), FitInput{Data: mustDataset(t), Schema: prep.Schema, Spec: prep.Spec})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrOutputMissing)

	runs := s.Runs().List()
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Equal(t, 4, runs[0].ExitCode)
	assert.Contains(t, runs[0].Error, "results.json")

	_, ok := s.Results("an-x")
	assert.False(t, ok)
	assert.Equal(t, int64(1), s.Metrics().Snapshot().Operations[metrics.OpEngineFit].Errors)
}

func TestRunAnalysisCachesBySettings(t *testing.T) {
	body := `printf '{"status":"success"}' > "$out/lasso_meta.json"
printf 'variable,coef\nx,0.4\n' > "$out/lasso_coefficients.csv"
`
	script, calls := stubEngine(t, body)
	bridge := engine.New(engine.Config{
		Command:         "/bin/sh",
		AnalysisScripts: map[string]string{"lasso": script},
		WorkRoot:        t.TempDir(),
	}, nil)
	s := newSession(t, bridge)

	ds, err := dataset.New([]string{"y", "x"}, [][]string{{"1", "2"}, {"2", "3"}, {"3", "5"}})
	require.NoError(t, err)

	req := AnalysisRequest{
		Analysis: guardrail.AnalysisLasso,
		Data:     ds,
		Settings: guardrail.LassoSettings{Target: "y", NFolds: 50},
	}
	first, err := s.RunAnalysis(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.NotEmpty(t, first.Warnings, "nfolds above the safe ceiling is clamped")
	assert.Equal(t, guardrail.LassoFolds.Safe, first.Settings.(guardrail.LassoSettings).NFolds)
	assert.Equal(t, []string{"lasso_coefficients"}, first.Run.TableNames())

	second, err := s.RunAnalysis(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, countCalls(t, calls))

	req.Settings = guardrail.LassoSettings{Target: "y", NFolds: 3}
	third, err := s.RunAnalysis(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, countCalls(t, calls))
}

func TestRunAnalysisRejectsMismatchedSettings(t *testing.T) {
	s := newSession(t, nil)
	_, err := s.RunAnalysis(context.Background(), AnalysisRequest{
		Analysis: guardrail.AnalysisBootnet,
		Data:     mustDataset(t),
		Settings: guardrail.NCTSettings{},
	})
	assert.ErrorContains(t, err, "do not match")

	_, err = s.RunAnalysis(context.Background(), AnalysisRequest{Analysis: "pca", Data: mustDataset(t)})
	assert.ErrorIs(t, err, guardrail.ErrUnknownAnalysis)
}

func TestRunTracker(t *testing.T) {
	tr := NewRunTracker(2, nil)

	a := tr.Start("fit", "an-1", time.Minute)
	assert.Equal(t, RunStatusPending, a.Snapshot().Status)
	assert.Len(t, a.ID, 8)
	tr.SetRunning(a)
	assert.Equal(t, RunStatusRunning, tr.Get(a.ID).Snapshot().Status)
	assert.Less(t, a.Fraction(), 1.0)
	tr.Complete(a, 0)

	time.Sleep(time.Millisecond)
	b := tr.Start("bootnet", "an-1", time.Minute)
	tr.Fail(b, 1, errors.New("boom"))
	assert.Equal(t, "boom", tr.Get(b.ID).Snapshot().Error)

	time.Sleep(time.Millisecond)
	c := tr.Start("fit", "an-2", time.Minute)

	runs := tr.List()
	require.Len(t, runs, 2, "oldest finished run evicted")
	assert.Equal(t, c.ID, runs[0].ID)
	assert.Nil(t, tr.Get(a.ID))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CacheCapacity = 3
	cfg.BridgeMinGroups = 4
	cfg.EngineTimeout = time.Minute
	cfg.AdvancedUnlock = true

	opts := OptionsFromConfig(cfg, nil)
	require.NotNil(t, opts.Bridge)
	assert.Equal(t, 3, opts.CacheCapacity)
	assert.Equal(t, 4, opts.Network.Bridge.MinGroups)
	assert.Equal(t, 0.8, opts.Network.Bridge.MinCoverage)
	assert.Equal(t, time.Minute, opts.Timeout)
	assert.True(t, opts.Unlocked)
	assert.False(t, opts.Debug)

	s, err := NewSession(opts)
	require.NoError(t, err)
	assert.Equal(t, 3, s.CacheStats()[0].Capacity)
}
