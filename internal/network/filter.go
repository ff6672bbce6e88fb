// Package network computes derived analytics from a fitted network: edge
// filtering, node strength, expected influence, bridge centrality and the
// minimum spanning backbone.
//
// Every function here is pure. Inputs are never mutated.
package network

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// ErrNegativeThreshold is returned for a threshold below zero.
var ErrNegativeThreshold = errors.New("threshold must be >= 0")

// FilterOptions selects the edges analytics are computed over.
type FilterOptions struct {
	Threshold          float64
	UseAbsoluteWeights bool
	TopEdges           models.TopEdges
}

// OptionsFromExplore extracts the filter settings of an exploration config.
func OptionsFromExplore(cfg models.ExploreConfig) FilterOptions {
	return FilterOptions{
		Threshold:          cfg.Threshold,
		UseAbsoluteWeights: cfg.UseAbsoluteWeights,
		TopEdges:           cfg.TopEdges,
	}
}

// FilterEdges keeps edges whose weight (absolute if configured) is at least
// the threshold, sorted by descending absolute weight with ties broken by the
// unordered endpoint pair, then truncated to TopEdges. The result is a fresh
// slice.
func FilterEdges(edges []models.Edge, opts FilterOptions) ([]models.Edge, error) {
	if opts.Threshold < 0 || math.IsNaN(opts.Threshold) {
		return nil, fmt.Errorf("%w: got %g", ErrNegativeThreshold, opts.Threshold)
	}

	out := make([]models.Edge, 0, len(edges))
	for _, e := range edges {
		metric := e.Weight
		if opts.UseAbsoluteWeights {
			metric = math.Abs(metric)
		}
		if metric >= opts.Threshold {
			out = append(out, e)
		}
	}

	SortEdges(out)

	if opts.TopEdges > models.TopEdgesAll && int(opts.TopEdges) < len(out) {
		out = out[:opts.TopEdges]
	}
	return out, nil
}

// SortEdges orders edges in place by descending absolute weight, then by
// (min(source,target), max(source,target)).
func SortEdges(edges []models.Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		ai, aj := math.Abs(edges[i].Weight), math.Abs(edges[j].Weight)
		if ai != aj {
			return ai > aj
		}
		li, hi := endpoints(edges[i])
		lj, hj := endpoints(edges[j])
		if li != lj {
			return li < lj
		}
		return hi < hj
	})
}

func endpoints(e models.Edge) (lo, hi string) {
	if e.Source <= e.Target {
		return e.Source, e.Target
	}
	return e.Target, e.Source
}

// MaxAbsWeight returns the largest absolute edge weight, or 0 for no edges.
func MaxAbsWeight(edges []models.Edge) float64 {
	m := 0.0
	for _, e := range edges {
		m = max(m, math.Abs(e.Weight))
	}
	return m
}
