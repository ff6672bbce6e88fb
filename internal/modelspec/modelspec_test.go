package modelspec

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOverDefaults(t *testing.T) {
	s, err := Decode([]byte(`{"random_seed": 42, "mgm": {"regularization": {"ebic_gamma": 0.25}}}`))
	require.NoError(t, err)
	assert.Equal(t, 42, s.RandomSeed)
	assert.Equal(t, 0.25, s.MGM.Regularization.EBICGamma)
	// nested objects decode into the default value, so siblings survive
	assert.Equal(t, DefaultAlpha, s.MGM.Regularization.Alpha)
	assert.Equal(t, models.AggregatorMaxAbs, s.EdgeMapping.Aggregator)

	_, err = Decode([]byte(`{"random_seed": "x"}`))
	assert.Error(t, err)
}

func TestSanitizeForcesLockedFields(t *testing.T) {
	s := Default()
	s.MGM.Regularization.LambdaSelection = "CV"
	s.MissingPolicy.Action = "impute_mean"
	s.Engine.Mode = "python"

	clean := Sanitize(s)
	assert.Equal(t, models.LambdaSelectionEBIC, clean.MGM.Regularization.LambdaSelection)
	assert.Equal(t, models.MissingPolicyWarnAndAbort, clean.MissingPolicy.Action)
	assert.Equal(t, models.EngineModeSubprocess, clean.Engine.Mode)
	assert.Equal(t, clean, Sanitize(clean), "sanitize is idempotent")
}

func TestSanitizeClamps(t *testing.T) {
	s := Default()
	s.RandomSeed = -5
	s.MGM.K = 7
	s.MGM.Regularization.EBICGamma = 3
	s.MGM.Regularization.Alpha = math.NaN()
	s.MGM.RuleReg = "or"
	s.EdgeMapping.Aggregator = "median"
	s.EdgeMapping.SignStrategy = "MEAN"
	s.EdgeMapping.ZeroTolerance = -1
	s.Visualization.EdgeThreshold = -0.3
	s.Visualization.Layout = "spiral"

	clean := Sanitize(s)
	assert.Equal(t, 0, clean.RandomSeed)
	assert.Equal(t, DefaultK, clean.MGM.K)
	assert.Equal(t, 1.0, clean.MGM.Regularization.EBICGamma)
	assert.Equal(t, 0.5, clean.MGM.Regularization.Alpha)
	assert.Equal(t, models.RuleOR, clean.MGM.RuleReg)
	assert.Equal(t, models.AggregatorMaxAbs, clean.EdgeMapping.Aggregator)
	assert.Equal(t, models.SignStrategyMean, clean.EdgeMapping.SignStrategy)
	assert.Equal(t, 0.0, clean.EdgeMapping.ZeroTolerance)
	assert.Equal(t, 0.0, clean.Visualization.EdgeThreshold)
	assert.Equal(t, models.LayoutForce, clean.Visualization.Layout)

	s.MGM.K = 3
	assert.Equal(t, 3, Sanitize(s).MGM.K)
}

func TestBuildAnalysisID(t *testing.T) {
	schema := &models.SchemaDocument{AnalysisID: "from-schema"}

	assert.Equal(t, "explicit", Build(schema, Default(), BuildOptions{AnalysisID: "explicit"}).AnalysisID)
	assert.Equal(t, "from-schema", Build(schema, Default(), BuildOptions{}).AnalysisID)

	generated := Build(nil, Default(), BuildOptions{}).AnalysisID
	assert.Len(t, generated, 36)
	assert.Equal(t, 4, strings.Count(generated, "-"))
}

func TestBuildValidatesForAnyInput(t *testing.T) {
	fixed := func() time.Time { return time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC) }
	raw := []string{
		`{}`,
		`{"mgm": {"regularization": {"lambda_selection": "CV", "alpha": 9}}, "missing_policy": {"action": "drop"}}`,
		`{"engine": {"mode": "docker"}, "edge_mapping": {"aggregator": "??"}, "random_seed": -1}`,
	}
	for _, r := range raw {
		s, err := Decode([]byte(r))
		require.NoError(t, err)

		spec := Build(&models.SchemaDocument{AnalysisID: "a1"}, s, BuildOptions{
			Now:          fixed,
			SchemaSHA256: strings.Repeat("a", 64),
		})
		assert.Equal(t, "2026-02-02T00:00:00Z", spec.CreatedAt)
		assert.Equal(t, DefaultSchemaRef, spec.Input.SchemaRef)
		require.NoError(t, contract.Validate(contract.KindModelSpec, spec), "input %s", r)

		data, err := json.Marshal(spec)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"lambda_selection":"EBIC"`)
		assert.Contains(t, string(data), `"action":"warn_and_abort"`)
	}
}
