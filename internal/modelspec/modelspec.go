// Package modelspec builds model specification documents from user settings.
//
// Sanitize is always applied before a spec is built, so locked fields are
// forced to their canonical values no matter what the caller asked for.
package modelspec

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// Defaults for the model fit.
const (
	EngineName           = "R.mgm"
	DefaultSchemaRef     = "schema.json"
	DefaultRandomSeed    = 1
	DefaultK             = 2
	MaxK                 = 3
	DefaultEBICGamma     = 0.5
	DefaultAlpha         = 0.5
	DefaultZeroTolerance = 1e-12
)

// Settings are the user-adjustable parts of a model spec.
type Settings struct {
	Engine        models.SpecEngine            `json:"engine"`
	RandomSeed    int                          `json:"random_seed"`
	MGM           models.MGMSettings           `json:"mgm"`
	EdgeMapping   models.EdgeMapping           `json:"edge_mapping"`
	Visualization models.VisualizationSettings `json:"visualization"`
	Centrality    models.CentralitySettings    `json:"centrality"`
	MissingPolicy models.MissingPolicy         `json:"missing_policy"`
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		Engine:     models.SpecEngine{Name: EngineName, Mode: models.EngineModeSubprocess},
		RandomSeed: DefaultRandomSeed,
		MGM: models.MGMSettings{
			K: DefaultK,
			Regularization: models.Regularization{
				LambdaSelection: models.LambdaSelectionEBIC,
				EBICGamma:       DefaultEBICGamma,
				Alpha:           DefaultAlpha,
			},
			RuleReg:          models.RuleAND,
			Overparameterize: true,
			ScaleGaussian:    true,
			SignInfo:         true,
		},
		EdgeMapping: models.EdgeMapping{
			Aggregator:    models.AggregatorMaxAbs,
			SignStrategy:  models.SignStrategyDominant,
			ZeroTolerance: DefaultZeroTolerance,
		},
		Visualization: models.VisualizationSettings{Layout: models.LayoutForce},
		Centrality:    models.CentralitySettings{Compute: true, Weighted: true, UseAbsoluteWeights: true},
		MissingPolicy: models.MissingPolicy{Action: models.MissingPolicyWarnAndAbort},
	}
}

// Decode parses JSON settings over the defaults. Absent fields keep their
// default value.
func Decode(data []byte) (Settings, error) {
	s := Default()
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decode model settings: %w", err)
	}
	return s, nil
}

// Sanitize coerces every field into its allowed range and forces the locked
// fields. It is idempotent.
func Sanitize(s Settings) Settings {
	out := s

	out.Engine = models.SpecEngine{Name: EngineName, Mode: models.NormalizeEngineMode(string(s.Engine.Mode))}
	out.RandomSeed = max(s.RandomSeed, 0)

	out.MGM.K = DefaultK
	if s.MGM.K >= DefaultK && s.MGM.K <= MaxK {
		out.MGM.K = s.MGM.K
	}
	out.MGM.Regularization = models.Regularization{
		LambdaSelection: models.LambdaSelectionEBIC,
		EBICGamma:       clampUnit(s.MGM.Regularization.EBICGamma),
		Alpha:           clampUnit(s.MGM.Regularization.Alpha),
	}
	out.MGM.RuleReg = models.NormalizeRuleReg(string(s.MGM.RuleReg))

	out.EdgeMapping = models.EdgeMapping{
		Aggregator:    models.NormalizeAggregator(string(s.EdgeMapping.Aggregator)),
		SignStrategy:  models.NormalizeSignStrategy(string(s.EdgeMapping.SignStrategy)),
		ZeroTolerance: nonNegative(s.EdgeMapping.ZeroTolerance),
	}
	out.Visualization = models.VisualizationSettings{
		EdgeThreshold: nonNegative(s.Visualization.EdgeThreshold),
		Layout:        models.NormalizeLayout(string(s.Visualization.Layout)),
	}

	out.MissingPolicy = models.MissingPolicy{Action: models.MissingPolicyWarnAndAbort}
	return out
}

// clampUnit clamps to [0, 1]; NaN becomes the midpoint.
func clampUnit(x float64) float64 {
	if math.IsNaN(x) {
		return 0.5
	}
	return min(max(x, 0), 1)
}

func nonNegative(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	return x
}

// BuildOptions carry identity and provenance for Build.
type BuildOptions struct {
	// AnalysisID wins over the schema's id. When both are empty a new one is
	// generated.
	AnalysisID   string
	SchemaRef    string
	SchemaSHA256 string
	DataSHA256   string
	Now          func() time.Time
}

// Build sanitizes settings and assembles a model spec for schema. The result
// still needs contract validation.
func Build(schema *models.SchemaDocument, settings Settings, opts BuildOptions) *models.ModelSpec {
	clean := Sanitize(settings)

	id := opts.AnalysisID
	if id == "" && schema != nil {
		id = schema.AnalysisID
	}
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	ref := opts.SchemaRef
	if ref == "" {
		ref = DefaultSchemaRef
	}

	return &models.ModelSpec{
		SpecVersion: models.SpecVersion,
		AnalysisID:  id,
		CreatedAt:   models.Timestamp(now()),
		Input: models.SpecInput{
			SchemaRef:    ref,
			SchemaSHA256: opts.SchemaSHA256,
			DataSHA256:   opts.DataSHA256,
		},
		Engine:        clean.Engine,
		RandomSeed:    clean.RandomSeed,
		MGM:           clean.MGM,
		EdgeMapping:   clean.EdgeMapping,
		Visualization: clean.Visualization,
		Centrality:    clean.Centrality,
		MissingPolicy: clean.MissingPolicy,
	}
}
