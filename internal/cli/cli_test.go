package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsDoc = `{
  "result_version": "0.1.0",
  "analysis_id": "an-cli",
  "status": "success",
  "engine": {"name": "R.mgm"},
  "nodes": [{"id": "age"}, {"id": "group"}, {"id": "score"}],
  "edges": [
    {"source": "age", "target": "group", "weight": 0.4, "sign": "positive",
     "block_summary": {"n_params": 1, "l2_norm": 0.4, "mean": 0.4, "max": 0.4, "min": 0.4, "max_abs": 0.4}},
    {"source": "group", "target": "score", "weight": -0.1, "sign": "negative",
     "block_summary": {"n_params": 1, "l2_norm": 0.1, "mean": -0.1, "max": -0.1, "min": -0.1, "max_abs": 0.1}}
  ]
}`

const csvData = "Age,Group,Score\n31,a,1.5\n45,b,2.5\n28,a,0.5\n52,b,3.5\n"

// execute runs the root command with args, resetting flag state left behind
// by earlier invocations.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HYGEIA_LOG_FILE", filepath.Join(t.TempDir(), "hygeia.log"))
	t.Setenv("HYGEIA_CONFIG", "")

	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCommand(t *testing.T) {
	out, _, err := execute(t, "validate", "results", writeFile(t, "results.json", resultsDoc))
	require.NoError(t, err)
	assert.Contains(t, out, "valid results document")

	out, _, err = execute(t, "validate", "results", writeFile(t, "bad.json", `{"analysis_id": "x"}`))
	require.Error(t, err)
	assert.Contains(t, out, "violation")

	_, _, err = execute(t, "validate", "nope", writeFile(t, "results.json", resultsDoc))
	assert.Error(t, err)
}

func TestSchemaAndSpecCommands(t *testing.T) {
	data := writeFile(t, "data.csv", csvData)

	out, _, err := execute(t, "schema", data, "--analysis-id", "study-1", "--name", "wave 1")
	require.NoError(t, err)
	var schema models.SchemaDocument
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "study-1", schema.AnalysisID)
	assert.Len(t, schema.Variables, 3)
	assert.Equal(t, "wave 1", schema.Dataset.Name)

	schemaPath := writeFile(t, "schema.json", out)
	specPath := filepath.Join(t.TempDir(), "model_spec.json")
	_, _, err = execute(t, "spec", schemaPath, "--data", data, "-o", specPath)
	require.NoError(t, err)

	var spec models.ModelSpec
	require.NoError(t, readJSONFile(specPath, &spec))
	assert.Equal(t, "study-1", spec.AnalysisID)
	assert.Len(t, spec.Input.DataSHA256, 64)
	assert.Len(t, spec.Input.SchemaSHA256, 64)

	out, _, err = execute(t, "validate", "model_spec", specPath)
	require.NoError(t, err, out)
}

func TestExploreCommand(t *testing.T) {
	results := writeFile(t, "results.json", resultsDoc)

	out, _, err := execute(t, "explore", results, "--threshold", "0.2")
	require.NoError(t, err)
	assert.Contains(t, out, "an-cli")
	assert.Contains(t, out, "Backbone:")

	derived := filepath.Join(t.TempDir(), "derived.json")
	_, _, err = execute(t, "explore", results, "-o", derived)
	require.NoError(t, err)
	var d models.DerivedMetrics
	require.NoError(t, readJSONFile(derived, &d))
	assert.InDelta(t, 0.5, d.NodeMetrics.StrengthAbs["group"], 1e-12)
	assert.InDelta(t, 0.3, d.NodeMetrics.ExpectedInfluence["group"], 1e-12)

	_, _, err = execute(t, "explore", results, "--top-edges", "many")
	assert.Error(t, err)
}

func TestGuardrailsCommand(t *testing.T) {
	settings := writeFile(t, "lasso.yaml", "target: y\nnfolds: 50\n")

	out, _, err := execute(t, "guardrails", "lasso", "--settings", settings, "--json")
	require.NoError(t, err)
	var got struct {
		Settings map[string]any `json:"settings"`
		Warnings []any          `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.EqualValues(t, 10, got.Settings["nfolds"])
	assert.NotEmpty(t, got.Warnings)

	out, _, err = execute(t, "guardrails", "bootnet")
	require.NoError(t, err)
	assert.Contains(t, out, "within bounds")

	_, _, err = execute(t, "guardrails", "pca")
	assert.Error(t, err)
}

func TestHealthCommand(t *testing.T) {
	out, _, err := execute(t, "health", "--nodes", "250", "--edges", "6000")
	require.NoError(t, err)
	assert.Contains(t, out, "250 nodes")
	assert.Contains(t, out, "interactive=false")

	out, _, err = execute(t, "health", writeFile(t, "results.json", resultsDoc))
	require.NoError(t, err)
	assert.Contains(t, out, "3 nodes, 2 edges")
}

func TestFitCommand(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "engine.sh")
	body := "#!/bin/sh\nout=\"\"\nwhile [ $# -gt 0 ]; do\n  case \"$1\" in\n    --out) out=\"$2\"; shift 2 ;;\n    *) shift ;;\n  esac\ndone\n" +
		"cat > \"$out\" <<'EOF'\n" + resultsDoc + "\nEOF\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	t.Setenv("HYGEIA_ENGINE_CMD", "/bin/sh")
	t.Setenv("HYGEIA_ENGINE_SCRIPT", script)
	t.Setenv("HYGEIA_WORK_ROOT", t.TempDir())

	output := filepath.Join(dir, "results.json")
	_, errOut, err := execute(t, "fit", writeFile(t, "data.csv", csvData), "-o", output, "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Nodes: 3")

	var results models.Results
	require.NoError(t, readJSONFile(output, &results))
	assert.Equal(t, "an-cli", results.AnalysisID)

	_, _, err = execute(t, "fit", writeFile(t, "gaps.csv", "A,B\n1,\n2,3\n"), "--no-progress")
	assert.Error(t, err)
}
