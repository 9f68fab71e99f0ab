package routing

import (
	"context"
	"math"
	"slices"

	"aegis_router/pkg/graph"
)

// MinHeap is a concrete-typed min-heap for the Dijkstra priority queue.
// Avoids interface boxing overhead of container/heap. Entries with equal
// cost pop in ascending node order.
type MinHeap struct {
	items []PQItem
}

// PQItem is a priority queue entry.
type PQItem struct {
	Node uint32
	Cost float64
}

func (a PQItem) less(b PQItem) bool {
	if a.Cost != b.Cost {
		return a.Cost < b.Cost
	}
	return a.Node < b.Node
}

func (h *MinHeap) Len() int { return len(h.items) }

func (h *MinHeap) Push(node uint32, cost float64) {
	h.items = append(h.items, PQItem{node, cost})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap) Pop() PQItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

func (h *MinHeap) PeekCost() float64 {
	if len(h.items) == 0 {
		return math.Inf(1)
	}
	return h.items[0].Cost
}

func (h *MinHeap) Reset() {
	h.items = h.items[:0]
}

func (h *MinHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.items[i].less(h.items[parent]) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.items[left].less(h.items[smallest]) {
			smallest = left
		}
		if right < n && h.items[right].less(h.items[smallest]) {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// QueryState holds per-query Dijkstra state. It is reused across queries on
// graphs of the same size.
type QueryState struct {
	Dist    []float64
	PredE   []uint32 // edge used to reach each node (graph.NoNode = none)
	Touched []uint32 // nodes touched during this query (for fast reset)
	PQ      MinHeap
}

// NewQueryState creates a new QueryState for a graph with n nodes.
func NewQueryState(n uint32) *QueryState {
	dist := make([]float64, n)
	pred := make([]uint32, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		pred[i] = graph.NoNode
	}
	return &QueryState{
		Dist:    dist,
		PredE:   pred,
		Touched: make([]uint32, 0, 1024),
		PQ:      MinHeap{items: make([]PQItem, 0, 256)},
	}
}

// Reset clears only the touched entries for fast reuse.
func (qs *QueryState) Reset() {
	for _, node := range qs.Touched {
		qs.Dist[node] = math.Inf(1)
		qs.PredE[node] = graph.NoNode
	}
	qs.Touched = qs.Touched[:0]
	qs.PQ.Reset()
}

func (qs *QueryState) touch(node uint32, cost float64, via uint32) {
	if math.IsInf(qs.Dist[node], 1) {
		qs.Touched = append(qs.Touched, node)
	}
	qs.Dist[node] = cost
	qs.PredE[node] = via
}

// costFunc returns the search cost of edge e.
type costFunc func(e uint32) float64

// checkEvery is how many settled nodes pass between context checks.
const checkEvery = 100

// searchResult is the outcome of one shortest-path search.
type searchResult struct {
	Edges   []uint32
	Cost    float64
	Settled int
	Found   bool
}

// shortestPath runs Dijkstra from source to target over g.
func shortestPath(ctx context.Context, qs *QueryState, g *graph.Graph, source, target uint32, cost costFunc) (searchResult, error) {
	// Seed the queue with the source node.
	qs.touch(source, 0, graph.NoNode)
	qs.PQ.Push(source, 0)

	var res searchResult
	for qs.PQ.Len() > 0 {
		item := qs.PQ.Pop()
		u, d := item.Node, item.Cost
		if d > qs.Dist[u] {
			continue // stale entry
		}
		res.Settled++
		// Check context cancellation periodically.
		if res.Settled%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		if u == target {
			break
		}

		// Relax outgoing edges.
		bound := qs.Dist[target]
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := g.Head[e]
			nd := d + cost(e)
			// Paths already costlier than the best known target cost can
			// never improve it.
			if nd >= bound {
				continue
			}
			if nd < qs.Dist[v] {
				qs.touch(v, nd, e)
				qs.PQ.Push(v, nd)
			}
		}
	}

	if math.IsInf(qs.Dist[target], 1) {
		return res, nil
	}
	// Reconstruct the edge path by walking predecessors back to the source.
	res.Found = true
	res.Cost = qs.Dist[target]
	for n := target; n != source; {
		e := qs.PredE[n]
		res.Edges = append(res.Edges, e)
		n = g.Tail[e]
	}
	slices.Reverse(res.Edges)
	return res, nil
}
