package network

import (
	"fmt"
	"math"
	"sort"

	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// Bridge centrality defaults.
const (
	DefaultGroupKey    = "domain_group"
	DefaultMinGroups   = 2
	DefaultMinCoverage = 0.8
)

// Message codes attached to derived documents.
const (
	CodeBridgeDisabled = "BRIDGE_DISABLED"
	CodeBackboneEmpty  = "MST_EMPTY"
)

// BridgeOptions holds the thresholds that enable bridge centrality.
type BridgeOptions struct {
	MinGroups   int
	MinCoverage float64
}

// DefaultBridgeOptions returns the standard bridge thresholds.
func DefaultBridgeOptions() BridgeOptions {
	return BridgeOptions{MinGroups: DefaultMinGroups, MinCoverage: DefaultMinCoverage}
}

func zeroScores(nodes []models.Node) map[string]float64 {
	m := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		m[n.ID] = 0
	}
	return m
}

// Strength sums absolute incident edge weights per node. Every node gets an
// entry; endpoints missing from nodes are still scored.
func Strength(nodes []models.Node, edges []models.Edge) map[string]float64 {
	scores := zeroScores(nodes)
	for _, e := range edges {
		w := math.Abs(e.Weight)
		scores[e.Source] += w
		scores[e.Target] += w
	}
	return scores
}

// ExpectedInfluence sums signed incident edge weights per node.
func ExpectedInfluence(nodes []models.Node, edges []models.Edge) map[string]float64 {
	scores := zeroScores(nodes)
	for _, e := range edges {
		scores[e.Source] += e.Weight
		scores[e.Target] += e.Weight
	}
	return scores
}

// BridgeResult is the outcome of bridge centrality. When disabled both maps
// are empty and Info.Warning explains why.
type BridgeResult struct {
	Info              models.BridgeInfo
	StrengthAbs       map[string]float64
	ExpectedInfluence map[string]float64
}

// Bridge computes strength and expected influence restricted to edges whose
// endpoints carry different non-empty domain groups.
func Bridge(nodes []models.Node, edges []models.Edge, opts BridgeOptions) BridgeResult {
	groupOf := make(map[string]string, len(nodes))
	seen := make(map[string]struct{})
	grouped := 0
	for _, n := range nodes {
		if n.DomainGroup == "" {
			continue
		}
		groupOf[n.ID] = n.DomainGroup
		seen[n.DomainGroup] = struct{}{}
		grouped++
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	coverage := 0.0
	if len(nodes) > 0 {
		coverage = float64(grouped) / float64(len(nodes))
	}

	res := BridgeResult{
		Info: models.BridgeInfo{
			GroupKey: DefaultGroupKey,
			Groups:   groups,
		},
		StrengthAbs:       map[string]float64{},
		ExpectedInfluence: map[string]float64{},
	}

	if len(groups) < opts.MinGroups || coverage < opts.MinCoverage {
		res.Info.Warning = fmt.Sprintf(
			"Bridge metrics disabled: need >=%d groups (found %d) and >=%.0f%% coverage (found %.1f%%).",
			opts.MinGroups, len(groups), opts.MinCoverage*100, coverage*100)
		return res
	}

	res.Info.Enabled = true
	res.StrengthAbs = zeroScores(nodes)
	res.ExpectedInfluence = zeroScores(nodes)
	for _, e := range edges {
		gs, gt := groupOf[e.Source], groupOf[e.Target]
		if gs == "" || gt == "" || gs == gt {
			continue
		}
		w := e.Weight
		res.StrengthAbs[e.Source] += math.Abs(w)
		res.StrengthAbs[e.Target] += math.Abs(w)
		res.ExpectedInfluence[e.Source] += w
		res.ExpectedInfluence[e.Target] += w
	}
	return res
}
