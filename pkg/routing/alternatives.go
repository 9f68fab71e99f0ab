package routing

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"aegis_router/pkg/geo"
	"aegis_router/pkg/graph"
)

// Alternatives returns up to k distinct routes from start to end, found by
// repeatedly penalizing the edges of routes already chosen. Routes are
// sorted by risk cost, then blended cost. If the first search fails the
// error is the one Plan would return.
func (p *Planner) Alternatives(ctx context.Context, start, end geo.Coordinate, w Weighting, k int) ([]*Route, error) {
	if k <= 0 || (p.cfg.MaxAlternatives > 0 && k > p.cfg.MaxAlternatives) {
		k = p.cfg.MaxAlternatives
	}
	k = max(k, 1)

	snap := p.graphs.Snapshot()
	src, dst, err := p.snapBoth(snap.Graph, start, end)
	if err != nil {
		return nil, err
	}
	first, err := p.plan(ctx, snap, src, dst, w)
	if err != nil {
		return nil, err
	}
	routes := []*Route{first}
	if src == dst || k == 1 {
		return routes, nil
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	factor := p.cfg.AlternativePenalty
	if factor <= 1 {
		factor = 2
	}
	seen := map[string]bool{walkKey(first.Edges): true}
	penalized := make(map[uint32]int)
	penalize(snap.Graph, penalized, first.Edges)

	// Each attempt either finds a new route or penalizes a repeat further.
	for attempt := 0; len(routes) < k && attempt < 3*k; attempt++ {
		res, err := p.search(ctx, snap, src, dst, blended(snap, w, penalized, factor))
		if err != nil {
			// Keep what was found before the budget ran out.
			break
		}
		if !res.Found {
			break
		}
		penalize(snap.Graph, penalized, res.Edges)
		key := walkKey(res.Edges)
		if seen[key] {
			continue
		}
		seen[key] = true
		routes = append(routes, p.buildRoute(snap, src, res.Edges, w))
	}

	slices.SortStableFunc(routes, func(a, b *Route) int {
		if a.RiskCost != b.RiskCost {
			if a.RiskCost < b.RiskCost {
				return -1
			}
			return 1
		}
		if a.Cost != b.Cost {
			if a.Cost < b.Cost {
				return -1
			}
			return 1
		}
		return 0
	})
	return routes, nil
}

// penalize bumps the penalty count of each edge and its reverse.
func penalize(g *graph.Graph, penalized map[uint32]int, edges []uint32) {
	for _, e := range edges {
		penalized[e]++
		if rev := g.FindEdge(g.Head[e], g.Tail[e]); rev != graph.NoNode {
			penalized[rev]++
		}
	}
}

func walkKey(edges []uint32) string {
	var b strings.Builder
	for i, e := range edges {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(e), 10))
	}
	return b.String()
}
