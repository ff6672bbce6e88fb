// Package explore validates exploration configurations before they are hashed
// or applied to a results document.
package explore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/raphaelgruber/hygeia-go/internal/cache"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/raphaelgruber/hygeia-go/internal/network"
)

var (
	ErrNegativeThreshold = errors.New("threshold must be non-negative")
	ErrInvalidTopEdges   = errors.New("top_edges must be one of 200, 500, 1000, all")
)

// AllowedTopEdges are the accepted top_edges values besides "all".
var AllowedTopEdges = []models.TopEdges{200, 500, 1000}

// DefaultTopEdges is the top_edges value of a fresh configuration.
const DefaultTopEdges models.TopEdges = 500

// Default returns the configuration used when the caller supplies none.
func Default() models.ExploreConfig {
	return models.ExploreConfig{
		Threshold:          0,
		UseAbsoluteWeights: true,
		TopEdges:           DefaultTopEdges,
		ShowLabels:         true,
		Physics:            true,
	}
}

// Decode parses a JSON configuration. Absent fields keep their defaults.
func Decode(data []byte) (models.ExploreConfig, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return models.ExploreConfig{}, fmt.Errorf("decode explore config: %w", err)
	}
	return cfg, nil
}

// Normalize validates cfg and clamps its threshold to the largest absolute
// edge weight in results. With no edges the threshold becomes 0. A nil
// results document skips clamping.
func Normalize(cfg models.ExploreConfig, results *models.Results) (models.ExploreConfig, error) {
	if cfg.Threshold < 0 || math.IsNaN(cfg.Threshold) {
		return models.ExploreConfig{}, fmt.Errorf("%w: got %g", ErrNegativeThreshold, cfg.Threshold)
	}
	if !validTopEdges(cfg.TopEdges) {
		return models.ExploreConfig{}, fmt.Errorf("%w: got %s", ErrInvalidTopEdges, cfg.TopEdges)
	}

	out := cfg
	if results != nil {
		out.Threshold = min(out.Threshold, network.MaxAbsWeight(results.Edges))
	}
	return out, nil
}

func validTopEdges(t models.TopEdges) bool {
	if t == models.TopEdgesAll {
		return true
	}
	for _, a := range AllowedTopEdges {
		if t == a {
			return true
		}
	}
	return false
}

// Hash returns the cache key of a normalized configuration under analysisID.
func Hash(analysisID string, cfg models.ExploreConfig) (string, error) {
	return cache.ConfigHash(analysisID, cfg)
}
