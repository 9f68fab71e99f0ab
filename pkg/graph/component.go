package graph

import "strconv"

// UnionFind implements a disjoint-set data structure with path halving
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}
	// Union by rank.
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

func weakComponents(g *Graph) *UnionFind {
	uf := NewUnionFind(g.NumNodes)
	// Union all edges (both directions treated as undirected).
	for e := uint32(0); e < g.NumEdges; e++ {
		uf.Union(g.Tail[e], g.Head[e])
	}
	return uf
}

// CountComponents returns the number of weakly connected components.
func CountComponents(g *Graph) int {
	uf := weakComponents(g)
	n := 0
	for i := uint32(0); i < g.NumNodes; i++ {
		if uf.Find(i) == i {
			n++
		}
	}
	return n
}

// LargestComponent returns the node indices belonging to the largest
// weakly connected component (treating the directed graph as undirected).
func LargestComponent(g *Graph) []uint32 {
	if g.NumNodes == 0 {
		return nil
	}
	uf := weakComponents(g)

	// Find the representative with the largest size.
	bestRoot := uint32(0)
	bestSize := uint32(0)
	for i := uint32(0); i < g.NumNodes; i++ {
		root := uf.Find(i)
		if uf.size[root] > bestSize {
			bestRoot = root
			bestSize = uf.size[root]
		}
	}

	// Collect all nodes in the largest component.
	nodes := make([]uint32, 0, bestSize)
	for i := uint32(0); i < g.NumNodes; i++ {
		if uf.Find(i) == bestRoot {
			nodes = append(nodes, i)
		}
	}
	return nodes
}

// FilterToComponent creates a new graph containing only the specified nodes
// and the edges between them. Node order follows nodes.
func FilterToComponent(g *Graph, nodes []uint32) (*Graph, error) {
	// Renumber kept nodes by their position in nodes.
	keep := make(map[uint32]bool, len(nodes))
	n := &Network{Nodes: make([]NetworkNode, 0, len(nodes))}
	for _, u := range nodes {
		keep[u] = true
		n.Nodes = append(n.Nodes, NetworkNode{
			Key:   strconv.FormatUint(uint64(u), 10),
			Name:  g.NodeName[u],
			Coord: g.Coord(u),
		})
	}
	// Collect edges that are fully within the component.
	for _, u := range nodes {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := g.Head[e]
			if !keep[v] {
				continue
			}
			n.Segments = append(n.Segments, Segment{
				From:   strconv.FormatUint(uint64(u), 10),
				To:     strconv.FormatUint(uint64(v), 10),
				Cost:   g.BaseCost[e],
				OneWay: true,
			})
		}
	}
	return Build(n)
}
