package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/dataset"
	"github.com/raphaelgruber/hygeia-go/internal/guardrail"
	"github.com/raphaelgruber/hygeia-go/internal/modelspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResults = `{
  "result_version": "0.1.0",
  "analysis_id": "an-1",
  "status": "success",
  "engine": {"name": "R.mgm"},
  "input": {},
  "nodes": [
    {"id": "age", "column": "Age", "mgm_type": "g", "measurement_level": "continuous", "level": 1},
    {"id": "group", "column": "Group", "mgm_type": "c", "measurement_level": "nominal", "level": 2}
  ],
  "edges": [
    {
      "source": "age", "target": "group", "weight": 0.42, "sign": "unsigned",
      "block_summary": {"n_params": 1, "l2_norm": 0.42, "mean": 0.42, "max": 0.42, "min": 0.42, "max_abs": 0.42}
    }
  ]
}`

// parseOut is shell that stores the value following --out or --out_dir.
const parseOut = `out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --out|--out_dir) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
`

// writeStub creates an executable shell script in a fresh temp dir.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newBridge(t *testing.T, script string) *Bridge {
	t.Helper()
	return New(Config{Command: "/bin/sh", Script: script, WorkRoot: t.TempDir()}, nil)
}

func fixtureInput(t *testing.T) RunInput {
	t.Helper()
	ds, err := dataset.New([]string{"Age", "Group"}, [][]string{
		{"31", "a"}, {"45", "b"}, {"28", "a"}, {"52", "b"},
	})
	require.NoError(t, err)
	schema, err := dataset.BuildSchema(ds, dataset.SchemaOptions{AnalysisID: "an-1"})
	require.NoError(t, err)
	spec := modelspec.Build(schema, modelspec.Default(), modelspec.BuildOptions{})
	return RunInput{Data: ds, Schema: schema, Spec: spec, Timeout: 10 * time.Second}
}

func TestRunSuccess(t *testing.T) {
	script := writeStub(t, parseOut+"cat > \"$out\" <<'EOF'\n"+validResults+"\nEOF\necho fitted\n")
	b := newBridge(t, script)

	run, err := b.Run(context.Background(), fixtureInput(t))
	require.NoError(t, err)
	assert.Equal(t, "an-1", run.Results.AnalysisID)
	assert.Len(t, run.Results.Edges, 1)
	assert.NotNil(t, run.Results.Messages)
	assert.Equal(t, 0, run.Process.ExitCode)
	assert.Contains(t, run.Process.Stdout, "fitted")
	assert.Len(t, run.Hashes.Data, 64)
	assert.Len(t, run.Hashes.Schema, 64)
	assert.Len(t, run.Hashes.Spec, 64)
	assert.Empty(t, run.Workdir)

	entries, err := os.ReadDir(b.cfg.WorkRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "workdir removed after run")
}

func TestRunKeepWorkdir(t *testing.T) {
	script := writeStub(t, parseOut+"cat > \"$out\" <<'EOF'\n"+validResults+"\nEOF\n")
	b := newBridge(t, script)

	in := fixtureInput(t)
	in.KeepWorkdir = true
	run, err := b.Run(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, run.Workdir)
	assert.True(t, strings.HasPrefix(filepath.Base(run.Workdir), workdirPrefix))

	for _, name := range []string{DataFile, SchemaFile, SpecFile, ResultsFile} {
		assert.FileExists(t, filepath.Join(run.Workdir, name))
	}
	require.NoError(t, contract.ValidateFile(contract.KindSchema, filepath.Join(run.Workdir, SchemaFile)))
	require.NoError(t, contract.ValidateFile(contract.KindModelSpec, filepath.Join(run.Workdir, SpecFile)))
}

func TestRunTimeout(t *testing.T) {
	script := writeStub(t, "echo starting >&2\nexec sleep 10\n")
	b := newBridge(t, script)

	in := fixtureInput(t)
	in.Timeout = time.Second

	start := time.Now()
	_, err := b.Run(context.Background(), in)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, time.Second, te.Timeout)
	assert.True(t, te.Process.TimedOut)
	assert.Less(t, elapsed, 4*time.Second)
}

func TestRunOutputMissing(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero exit", "exit 0\n"},
		{"non-zero exit", "echo boom >&2\nexit 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBridge(t, writeStub(t, tt.body))
			_, err := b.Run(context.Background(), fixtureInput(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrOutputMissing)
			var me *OutputMissingError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, ResultsFile, me.Path)
		})
	}
}

func TestRunOutputInvalid(t *testing.T) {
	t.Run("contract violation", func(t *testing.T) {
		body := parseOut + `echo '{"result_version": "0.1.0", "status": "success"}' > "$out"` + "\n"
		b := newBridge(t, writeStub(t, body))
		_, err := b.Run(context.Background(), fixtureInput(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOutputInvalid)
		var ve *contract.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, contract.KindResults, ve.Kind)
	})

	t.Run("not json", func(t *testing.T) {
		body := parseOut + `echo 'not json' > "$out"` + "\n"
		b := newBridge(t, writeStub(t, body))
		_, err := b.Run(context.Background(), fixtureInput(t))
		assert.ErrorIs(t, err, ErrOutputInvalid)
	})
}

func TestRunNonZeroExitWithOutput(t *testing.T) {
	body := parseOut + "cat > \"$out\" <<'EOF'\n" + validResults + "\nEOF\necho 'mgm failed' >&2\nexit 2\n"
	b := newBridge(t, writeStub(t, body))

	_, err := b.Run(context.Background(), fixtureInput(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessFailed)
	var pe *ProcessError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Process.ExitCode)
	assert.Contains(t, err.Error(), "mgm failed")
}

func TestRunInvalidInputDoesNotSpawn(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "spawned")
	b := newBridge(t, writeStub(t, "touch "+marker+"\n"))

	in := fixtureInput(t)
	in.Spec.RandomSeed = -1
	_, err := b.Run(context.Background(), in)
	require.Error(t, err)
	var ve *contract.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, contract.KindModelSpec, ve.Kind)
	assert.NoFileExists(t, marker)

	in = fixtureInput(t)
	in.Schema = nil
	_, err = b.Run(context.Background(), in)
	assert.Error(t, err)
	assert.NoFileExists(t, marker)
}

func TestRunCancelled(t *testing.T) {
	b := newBridge(t, writeStub(t, "exec sleep 10\n"))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	_, err := b.Run(ctx, fixtureInput(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestLimitedWriter(t *testing.T) {
	var sb strings.Builder
	lw := &limitedWriter{w: &sb, limit: 5}

	n, err := lw.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = lw.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "abcde", sb.String())
	assert.True(t, lw.truncated)
}

func TestErrorMessagesExcerptStderr(t *testing.T) {
	err := &ProcessError{Process: Process{ExitCode: 1, Stderr: strings.Repeat("x", 2000)}}
	assert.Less(t, len(err.Error()), 600)
	assert.Contains(t, err.Error(), "exit code 1")
}

func analysisBridge(t *testing.T, analysis guardrail.Analysis, body string) *Bridge {
	t.Helper()
	return New(Config{
		Command:         "/bin/sh",
		AnalysisScripts: map[string]string{string(analysis): writeStub(t, body)},
		WorkRoot:        t.TempDir(),
	}, nil)
}

func TestRunAnalysisBootnet(t *testing.T) {
	body := parseOut + `printf '{"status":"success","messages":[]}' > "$out/bootnet_meta.json"
printf 'edge,mean,ci_low,ci_high\nage--group,0.4,0.1,0.6\n' > "$out/edge_summary.csv"
printf 'measure,cor\nstrength,0.7\n' > "$out/centrality_stability.csv"
`
	b := analysisBridge(t, guardrail.AnalysisBootnet, body)
	base := fixtureInput(t)
	settings, _ := guardrail.NormalizeBootnet(guardrail.BootnetSettings{}, false)

	run, err := b.RunAnalysis(context.Background(), AnalysisInput{
		Analysis: guardrail.AnalysisBootnet,
		Data:     base.Data,
		Schema:   base.Schema,
		Spec:     base.Spec,
		Settings: settings,
		Timeout:  10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "success", run.Meta["status"])
	assert.Equal(t, []string{"centrality_stability", "edge_summary"}, run.TableNames())
	assert.Equal(t, []string{"edge", "mean", "ci_low", "ci_high"}, run.Tables["edge_summary"].Columns)
	require.Len(t, run.Tables["edge_summary"].Rows, 1)
	assert.Equal(t, "age--group", run.Tables["edge_summary"].Rows[0][0])
}

func TestRunAnalysisFailureUsesMetaMessage(t *testing.T) {
	body := parseOut + `printf '{"status":"failed","messages":[{"level":"error","code":"LASSO_FAILED","message":"target is constant"}]}' > "$out/lasso_meta.json"
exit 1
`
	b := analysisBridge(t, guardrail.AnalysisLasso, body)
	ds, err := dataset.New([]string{"y", "x"}, [][]string{{"1", "2"}, {"1", "3"}})
	require.NoError(t, err)

	_, err = b.RunAnalysis(context.Background(), AnalysisInput{
		Analysis: guardrail.AnalysisLasso,
		Data:     ds,
		Settings: guardrail.LassoSettings{Target: "y", NFolds: 5, MaxFeatures: 10},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessFailed)
	assert.Contains(t, err.Error(), "target is constant")
}

func TestRunAnalysisRejectsBeforeSpawn(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "spawned")
	b := analysisBridge(t, guardrail.AnalysisLasso, "touch "+marker+"\n")

	withMissing, err := dataset.New([]string{"y", "x"}, [][]string{{"1", "NA"}, {"2", "3"}})
	require.NoError(t, err)
	complete, err := dataset.New([]string{"y", "x"}, [][]string{{"1", "2"}, {"2", "3"}})
	require.NoError(t, err)

	tests := []struct {
		name  string
		in    AnalysisInput
		check func(t *testing.T, err error)
	}{
		{
			name: "missing values",
			in:   AnalysisInput{Analysis: guardrail.AnalysisLasso, Data: withMissing, Settings: guardrail.LassoSettings{Target: "y"}},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrMissingValues)
			},
		},
		{
			name: "no script",
			in:   AnalysisInput{Analysis: guardrail.AnalysisNCT, Data: complete, Settings: guardrail.NCTSettings{GroupVar: "y"}},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoScript)
			},
		},
		{
			name: "settings mismatch",
			in:   AnalysisInput{Analysis: guardrail.AnalysisLasso, Data: complete, Settings: guardrail.BootnetSettings{}},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "do not match")
			},
		},
		{
			name: "lasso without target",
			in:   AnalysisInput{Analysis: guardrail.AnalysisLasso, Data: complete, Settings: guardrail.LassoSettings{}},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "target is required")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.RunAnalysis(context.Background(), tt.in)
			require.Error(t, err)
			tt.check(t, err)
			assert.NoFileExists(t, marker)
		})
	}
}

func TestAnalysisArgs(t *testing.T) {
	alpha := 0.5
	args, err := analysisArgs(guardrail.AnalysisLasso, guardrail.LassoSettings{Target: "y", NFolds: 5, MaxFeatures: 30, Alpha: &alpha}, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--target", "y", "--nfolds", "5", "--max_features", "30", "--alpha", "0.5", "--seed", "7",
	}, args)

	args, err = analysisArgs(guardrail.AnalysisNCT, guardrail.NCTSettings{GroupVar: "sex", Permutations: 100, NCores: 1, EdgeTests: true, Mode: guardrail.NCTModeAuto}, 1)
	require.NoError(t, err)
	assert.Contains(t, strings.Join(args, " "), "--edge_tests 1")
	assert.Contains(t, strings.Join(args, " "), "--group_var sex")
}
