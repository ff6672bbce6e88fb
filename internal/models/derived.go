package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TopEdges limits how many edges survive filtering. TopEdgesAll disables the limit.
type TopEdges int

// TopEdgesAll keeps every edge.
const TopEdgesAll TopEdges = 0

// String renders the limit the way it appears in JSON.
func (t TopEdges) String() string {
	if t <= TopEdgesAll {
		return "all"
	}
	return strconv.Itoa(int(t))
}

// MarshalJSON writes "all" or the integer limit.
func (t TopEdges) MarshalJSON() ([]byte, error) {
	if t <= TopEdgesAll {
		return []byte(`"all"`), nil
	}
	return json.Marshal(int(t))
}

// UnmarshalJSON accepts an integer, a numeric string, or "all" (any case).
func (t *TopEdges) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = TopEdgesAll
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*t = TopEdges(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("top_edges: expected integer or \"all\": %w", err)
	}
	parsed, err := ParseTopEdges(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTopEdges parses "all" or a non-negative integer.
func ParseTopEdges(s string) (TopEdges, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") || s == "" {
		return TopEdgesAll, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return TopEdgesAll, fmt.Errorf("top_edges: invalid value %q", s)
	}
	return TopEdges(n), nil
}

// ExploreConfig is the exploration configuration applied to a results document.
type ExploreConfig struct {
	Threshold          float64  `json:"threshold"`
	UseAbsoluteWeights bool     `json:"use_absolute_weights"`
	TopEdges           TopEdges `json:"top_edges"`
	ShowLabels         bool     `json:"show_labels"`
	Physics            bool     `json:"physics"`
}

// NodeMetrics holds node-keyed derived analytics. Every map has an entry for
// every node in the results document unless bridge metrics are disabled,
// in which case the two bridge maps are empty.
type NodeMetrics struct {
	StrengthAbs             map[string]float64 `json:"strength_abs"`
	ExpectedInfluence       map[string]float64 `json:"expected_influence"`
	BridgeStrengthAbs       map[string]float64 `json:"bridge_strength_abs"`
	BridgeExpectedInfluence map[string]float64 `json:"bridge_expected_influence"`
}

// BridgeInfo reports whether bridge centrality could be computed.
type BridgeInfo struct {
	Enabled  bool     `json:"enabled"`
	GroupKey string   `json:"group_key"`
	Groups   []string `json:"groups"`
	Warning  string   `json:"warning,omitempty"`
}

// BackboneEdge is one edge of the minimum spanning backbone.
type BackboneEdge struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SignedWeight float64 `json:"signed_weight"`
	AbsWeight    float64 `json:"abs_weight"`
	Sign         Sign    `json:"sign"`
	Distance     float64 `json:"distance"`
}

// Backbone is the minimum spanning forest over the filtered edges.
type Backbone struct {
	Enabled   bool           `json:"enabled"`
	EdgeCount int            `json:"edge_count"`
	Edges     []BackboneEdge `json:"edges"`
	Notes     []string       `json:"notes"`
}

// DerivedConfig records the settings a derived document was computed with.
type DerivedConfig struct {
	Threshold          float64  `json:"threshold"`
	UseAbsoluteWeights bool     `json:"use_absolute_weights"`
	TopEdges           TopEdges `json:"top_edges"`
	BackboneOnly       bool     `json:"backbone_only"`
}

// DerivedMetrics is the secondary analytics document computed from Results.
type DerivedMetrics struct {
	AnalysisID     string        `json:"analysis_id"`
	DerivedVersion string        `json:"derived_version"`
	ComputedAt     string        `json:"computed_at"`
	Config         DerivedConfig `json:"config"`
	NodeMetrics    NodeMetrics   `json:"node_metrics"`
	Bridge         BridgeInfo    `json:"bridge"`
	MST            Backbone      `json:"mst"`
	Messages       []Message     `json:"messages"`
}
