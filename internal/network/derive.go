package network

import (
	"fmt"
	"time"

	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// Options tunes Derive. The zero value uses the default bridge thresholds and
// the wall clock.
type Options struct {
	Bridge BridgeOptions
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Bridge.MinGroups <= 0 {
		o.Bridge.MinGroups = DefaultMinGroups
	}
	if o.Bridge.MinCoverage <= 0 {
		o.Bridge.MinCoverage = DefaultMinCoverage
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Derive computes the derived metrics document for results under cfg. The
// results document is not modified.
func Derive(results *models.Results, cfg models.ExploreConfig, opts Options) (*models.DerivedMetrics, error) {
	if results == nil {
		return nil, fmt.Errorf("derive: nil results")
	}
	opts = opts.withDefaults()

	filtered, err := FilterEdges(results.Edges, OptionsFromExplore(cfg))
	if err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}

	messages := []models.Message{}

	bridge := Bridge(results.Nodes, filtered, opts.Bridge)
	if !bridge.Info.Enabled {
		messages = append(messages, models.Message{
			Level:   models.MessageWarning,
			Code:    CodeBridgeDisabled,
			Message: bridge.Info.Warning,
		})
	}

	backbone := Backbone(filtered)
	if backbone.EdgeCount == 0 {
		messages = append(messages, models.Message{
			Level:   models.MessageWarning,
			Code:    CodeBackboneEmpty,
			Message: "MST computation yielded 0 edges. Graph might be empty or all weights zero.",
		})
	}

	return &models.DerivedMetrics{
		AnalysisID:     results.AnalysisID,
		DerivedVersion: models.DerivedVersion,
		ComputedAt:     models.Timestamp(opts.Now()),
		Config: models.DerivedConfig{
			Threshold:          cfg.Threshold,
			UseAbsoluteWeights: cfg.UseAbsoluteWeights,
			TopEdges:           cfg.TopEdges,
		},
		NodeMetrics: models.NodeMetrics{
			StrengthAbs:             Strength(results.Nodes, filtered),
			ExpectedInfluence:       ExpectedInfluence(results.Nodes, filtered),
			BridgeStrengthAbs:       bridge.StrengthAbs,
			BridgeExpectedInfluence: bridge.ExpectedInfluence,
		},
		Bridge:   bridge.Info,
		MST:      backbone,
		Messages: messages,
	}, nil
}
