package guardrail

import (
	"fmt"
	"math"

	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// Network size thresholds.
const (
	NodesHideLabels         = 80
	NodesLimitEdges         = 120
	NodesDisableInteractive = 200
	EdgesRequireThreshold   = 5000
	MaxEdgesAllowed         = 10000

	recommendedTopEdges      = 1000
	largeNetworkThreshold    = 0.1
	denseNetworkThreshold    = 0.05
	enforcedMinThreshold     = 0.01
	interactiveEdgeLimit     = 2000
	bytesPerAdjacencyCell    = 8
	renderOverheadMultiplier = 2
)

// Recommendation holds suggested exploration defaults for a network size.
type Recommendation struct {
	ShowLabels         bool            `json:"show_labels"`
	TopEdges           models.TopEdges `json:"top_edges"`
	Threshold          float64         `json:"threshold"`
	InteractiveEnabled bool            `json:"interactive_enabled"`
	Warnings           []string        `json:"warnings"`
}

// Recommend suggests exploration defaults for a network with the given size.
func Recommend(nNodes, nEdges int) Recommendation {
	rec := Recommendation{
		ShowLabels:         true,
		TopEdges:           models.TopEdgesAll,
		InteractiveEnabled: true,
		Warnings:           []string{},
	}

	if nNodes > NodesHideLabels {
		rec.ShowLabels = false
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("Labels hidden (>%d nodes) for readability.", NodesHideLabels))
	}
	if nNodes > NodesLimitEdges {
		rec.TopEdges = recommendedTopEdges
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("Top edges limited to %d (>%d nodes).", recommendedTopEdges, NodesLimitEdges))
	}
	if nNodes > NodesDisableInteractive {
		rec.InteractiveEnabled = false
		rec.Threshold = largeNetworkThreshold
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("Interactive view disabled by default (>%d nodes). Increase threshold or reduce top_edges to enable.",
				NodesDisableInteractive))
	}
	if nEdges > EdgesRequireThreshold {
		rec.Threshold = max(rec.Threshold, denseNetworkThreshold)
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("High edge count (%d). Threshold increased for performance.", nEdges))
	}
	return rec
}

// Enforced is an exploration configuration after size limits were applied.
type Enforced struct {
	Config      models.ExploreConfig `json:"config"`
	Interactive bool                 `json:"interactive"`
	Warnings    []Warning            `json:"warnings"`
}

// EnforceExplore caps an exploration configuration for very large networks.
func EnforceExplore(cfg models.ExploreConfig, nNodes, nEdges int) Enforced {
	out := Enforced{Config: cfg, Interactive: true}

	if nNodes > NodesDisableInteractive {
		if cfg.TopEdges == models.TopEdgesAll || cfg.TopEdges > MaxEdgesAllowed {
			out.Config.TopEdges = MaxEdgesAllowed
			out.Warnings = append(out.Warnings, Warning{
				Level:   models.MessageWarning,
				Code:    "EXPLORE_TOP_EDGES_CLAMPED",
				Field:   "top_edges",
				Message: fmt.Sprintf("top_edges clamped to %d for large network.", MaxEdgesAllowed),
			})
		}
	}

	if nEdges > EdgesRequireThreshold && out.Config.Threshold < enforcedMinThreshold {
		out.Config.Threshold = enforcedMinThreshold
		out.Warnings = append(out.Warnings, Warning{
			Level: models.MessageWarning,
			Code:  "EXPLORE_THRESHOLD_RAISED",
			Field: "threshold",
			Message: fmt.Sprintf("Threshold increased to %g (>%d edges).",
				enforcedMinThreshold, EdgesRequireThreshold),
		})
	}

	if nNodes > NodesDisableInteractive {
		shown := nEdges
		if out.Config.TopEdges != models.TopEdgesAll {
			shown = min(shown, int(out.Config.TopEdges))
		}
		if shown > interactiveEdgeLimit {
			out.Interactive = false
			out.Warnings = append(out.Warnings, Warning{
				Level:   models.MessageInfo,
				Code:    "EXPLORE_INTERACTIVE_DISABLED",
				Message: "Interactive view disabled for this network size. Use static exports instead.",
			})
		}
	}

	return out
}

// MemoryLevel grades an adjacency memory estimate.
type MemoryLevel string

const (
	MemoryOK       MemoryLevel = "ok"
	MemoryInfo     MemoryLevel = "info"
	MemoryWarning  MemoryLevel = "warning"
	MemoryCritical MemoryLevel = "critical"
)

// MemoryEstimate approximates the memory a dense adjacency matrix needs.
type MemoryEstimate struct {
	Nodes            int         `json:"n_nodes"`
	AdjacencyMB      float64     `json:"adjacency_mb"`
	RenderEstimateMB float64     `json:"render_estimate_mb"`
	Level            MemoryLevel `json:"level"`
	Message          string      `json:"message"`
}

// EstimateMemory sizes a float64 adjacency matrix for nNodes nodes.
func EstimateMemory(nNodes int) MemoryEstimate {
	mb := float64(nNodes) * float64(nNodes) * bytesPerAdjacencyCell / (1024 * 1024)

	est := MemoryEstimate{
		Nodes:            nNodes,
		AdjacencyMB:      round2(mb),
		RenderEstimateMB: round2(mb * renderOverheadMultiplier),
	}
	switch {
	case mb > 500:
		est.Level = MemoryCritical
		est.Message = "Very large network. Consider filtering or using static exports."
	case mb > 100:
		est.Level = MemoryWarning
		est.Message = "Large network. Filtering recommended for smooth interaction."
	case mb > 50:
		est.Level = MemoryInfo
		est.Message = "Moderate network size. Should work with reasonable filtering."
	default:
		est.Level = MemoryOK
		est.Message = "Network size is within normal range."
	}
	return est
}

// Health combines the memory estimate with recommended defaults.
type Health struct {
	Memory          MemoryEstimate `json:"memory"`
	Recommendations Recommendation `json:"recommendations"`
	SafeToRender    bool           `json:"safe_to_render"`
}

// CheckHealth summarizes whether a network can be explored interactively.
func CheckHealth(nNodes, nEdges int) Health {
	mem := EstimateMemory(nNodes)
	rec := Recommend(nNodes, nEdges)
	return Health{
		Memory:          mem,
		Recommendations: rec,
		SafeToRender:    (mem.Level == MemoryOK || mem.Level == MemoryInfo) && rec.InteractiveEnabled,
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
