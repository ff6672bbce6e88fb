package network

import (
	"math"
	"sort"

	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// BackboneEpsilon keeps distance = 1/(|w|+eps) finite.
const BackboneEpsilon = 1e-9

const (
	noteBackboneEmpty  = "No edges with >0 weight available for MST."
	noteBackboneForest = "MST computed on filtered network; disconnected graphs yield a forest."
)

// Backbone computes the minimum spanning forest of the edges under
// distance = 1/(|w|+eps), which is the maximum spanning forest by absolute
// weight. Zero-weight edges and self-loops are skipped. Edges are reported by
// descending absolute weight, then by endpoint pair.
func Backbone(edges []models.Edge) models.Backbone {
	candidates := make([]models.BackboneEdge, 0, len(edges))
	for _, e := range edges {
		abs := math.Abs(e.Weight)
		if abs <= 0 || e.Source == e.Target {
			continue
		}
		src, dst := e.Source, e.Target
		if src > dst {
			src, dst = dst, src
		}
		candidates = append(candidates, models.BackboneEdge{
			Source:       src,
			Target:       dst,
			SignedWeight: e.Weight,
			AbsWeight:    abs,
			Sign:         e.Sign,
			Distance:     1.0 / (abs + BackboneEpsilon),
		})
	}

	if len(candidates) == 0 {
		return models.Backbone{
			Enabled: true,
			Edges:   []models.BackboneEdge{},
			Notes:   []string{noteBackboneEmpty},
		}
	}

	sortBackbone(candidates)

	// Kruskal over ascending distance, which is the order sortBackbone produced.
	uf := newUnionFind()
	tree := make([]models.BackboneEdge, 0, len(candidates))
	for _, c := range candidates {
		if uf.union(c.Source, c.Target) {
			tree = append(tree, c)
		}
	}

	return models.Backbone{
		Enabled:   true,
		EdgeCount: len(tree),
		Edges:     tree,
		Notes:     []string{noteBackboneForest},
	}
}

func sortBackbone(edges []models.BackboneEdge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].AbsWeight != edges[j].AbsWeight {
			return edges[i].AbsWeight > edges[j].AbsWeight
		}
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
}

// unionFind is a disjoint set over node ids with path compression and union
// by rank.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: map[string]string{}, rank: map[string]int{}}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		return x
	}
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union merges the sets of a and b and reports whether they were disjoint.
func (u *unionFind) union(a, b string) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
	return true
}
