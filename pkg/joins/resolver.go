// Package joins discovers a minimum-weight acyclic join path connecting
// the tables a query needs, over the declared relationship graph.
package joins

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/models"
)

// Resolution is either a join path or an explicit ambiguity; never both.
type Resolution struct {
	Path      *models.JoinPath
	Ambiguity *models.Ambiguity
}

// Resolver finds join paths across the relationship graph.
type Resolver struct {
	graph  *Graph
	logger *zap.Logger
}

// NewResolver builds a resolver over a static relationship graph.
func NewResolver(graph *Graph, logger *zap.Logger) *Resolver {
	return &Resolver{graph: graph, logger: logger.Named("joins")}
}

// ResolvePath connects the required tables with a minimum-weight acyclic
// subgraph, using intermediate tables only when no direct edge exists or
// an indirect route is cheaper. Disconnected required tables produce an
// Ambiguity naming each group instead of a guessed join.
func (r *Resolver) ResolvePath(requiredTables []string) Resolution {
	required := dedupeSorted(requiredTables)

	if len(required) <= 1 {
		return Resolution{Path: &models.JoinPath{Tables: required}}
	}

	// Unknown tables can never be joined; treat each as its own group.
	var unknown []string
	var known []string
	for _, t := range required {
		if r.graph.Has(t) {
			known = append(known, t)
		} else {
			unknown = append(unknown, t)
		}
	}
	if len(unknown) > 0 {
		groups := r.reachabilityGroups(known)
		for _, t := range unknown {
			groups = append(groups, []string{t})
		}
		return ambiguous(groups)
	}

	// Shortest paths between every required pair (metric closure).
	type pairPath struct {
		from, to string
		cost     float64
		edges    []models.JoinEdge
	}
	var pairs []pairPath
	for i := 0; i < len(known); i++ {
		dist, prev := r.dijkstra(known[i])
		for j := i + 1; j < len(known); j++ {
			cost, ok := dist[known[j]]
			if !ok {
				return ambiguous(r.reachabilityGroups(known))
			}
			pairs = append(pairs, pairPath{
				from:  known[i],
				to:    known[j],
				cost:  cost,
				edges: r.unwind(prev, known[i], known[j]),
			})
		}
	}

	// Kruskal over the closure: cheapest pair first; equal cost prefers
	// fewer edges, then the lexicographically earliest table pair.
	sort.SliceStable(pairs, func(a, b int) bool {
		if pairs[a].cost != pairs[b].cost {
			return pairs[a].cost < pairs[b].cost
		}
		if len(pairs[a].edges) != len(pairs[b].edges) {
			return len(pairs[a].edges) < len(pairs[b].edges)
		}
		return pairs[a].from+"|"+pairs[a].to < pairs[b].from+"|"+pairs[b].to
	})

	uf := newUnionFind(known)
	seen := make(map[string]bool)
	var pathEdges []models.JoinEdge
	tables := make(map[string]bool)
	for _, t := range known {
		tables[t] = true
	}

	for _, p := range pairs {
		if uf.find(p.from) == uf.find(p.to) {
			continue
		}
		uf.union(p.from, p.to)
		for _, e := range p.edges {
			key := e.PairKey() + "|" + e.LeftColumn + "|" + e.RightColumn
			if seen[key] {
				continue
			}
			seen[key] = true
			pathEdges = append(pathEdges, e)
			tables[e.LeftTable] = true
			tables[e.RightTable] = true
		}
	}

	path := buildPath(known[0], pathEdges, tables)
	r.logger.Debug("join path resolved",
		zap.Int("required", len(known)),
		zap.Int("edges", len(path.Edges)))
	return Resolution{Path: &path}
}

// dijkstra computes cheapest paths from source over edge weight
// 1 - confidence. prev records the edge index used to reach each table.
func (r *Resolver) dijkstra(source string) (map[string]float64, map[string]int) {
	dist := map[string]float64{source: 0}
	prev := make(map[string]int)
	done := make(map[string]bool)

	pq := &tableHeap{{table: source, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(tableCost)
		if done[cur.table] {
			continue
		}
		done[cur.table] = true

		for _, idx := range r.graph.adjacency[cur.table] {
			e := r.graph.edges[idx]
			next := other(e, cur.table)
			cost := cur.cost + weight(e)
			if old, ok := dist[next]; !ok || cost < old-1e-12 {
				dist[next] = cost
				prev[next] = idx
				heap.Push(pq, tableCost{table: next, cost: cost})
			}
		}
	}
	return dist, prev
}

// unwind walks prev edges back from target to source.
func (r *Resolver) unwind(prev map[string]int, source, target string) []models.JoinEdge {
	var edges []models.JoinEdge
	cur := target
	for cur != source {
		idx, ok := prev[cur]
		if !ok {
			return nil
		}
		e := r.graph.edges[idx]
		edges = append([]models.JoinEdge{e}, edges...)
		cur = other(e, cur)
	}
	return edges
}

// reachabilityGroups partitions required tables into connected groups.
func (r *Resolver) reachabilityGroups(required []string) [][]string {
	uf := newUnionFind(required)
	for i := 0; i < len(required); i++ {
		dist, _ := r.dijkstra(required[i])
		for j := i + 1; j < len(required); j++ {
			if _, ok := dist[required[j]]; ok {
				uf.union(required[i], required[j])
			}
		}
	}
	byRoot := make(map[string][]string)
	for _, t := range required {
		root := uf.find(t)
		byRoot[root] = append(byRoot[root], t)
	}
	groups := make([][]string, 0, len(byRoot))
	for _, g := range byRoot {
		sort.Strings(g)
		groups = append(groups, g)
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a][0] < groups[b][0] })
	return groups
}

func ambiguous(groups [][]string) Resolution {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = "[" + strings.Join(g, ", ") + "]"
	}
	return Resolution{Ambiguity: &models.Ambiguity{
		Kind:    "disconnected_tables",
		Message: fmt.Sprintf("no declared relationship connects the required tables: %s", strings.Join(names, " ")),
		Groups:  groups,
	}}
}

// buildPath orders the tree edges in a BFS walk from start so consumers
// can render FROM ... JOIN ... top-down, and sums edge confidences.
func buildPath(start string, edges []models.JoinEdge, tableSet map[string]bool) models.JoinPath {
	adj := make(map[string][]models.JoinEdge)
	for _, e := range edges {
		adj[e.LeftTable] = append(adj[e.LeftTable], e)
		adj[e.RightTable] = append(adj[e.RightTable], e)
	}

	visited := map[string]bool{start: true}
	ordered := []string{start}
	var orderedEdges []models.JoinEdge
	queue := []string{start}
	score := 0.0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		neighbors := adj[cur]
		sort.SliceStable(neighbors, func(a, b int) bool { return neighbors[a].PairKey() < neighbors[b].PairKey() })
		for _, e := range neighbors {
			next := other(e, cur)
			if visited[next] {
				continue
			}
			visited[next] = true
			ordered = append(ordered, next)
			orderedEdges = append(orderedEdges, e)
			score += e.Confidence
			queue = append(queue, next)
		}
	}

	// Any table not reached from start (should not happen for a tree)
	// is appended so the path still covers every selected table.
	var rest []string
	for t := range tableSet {
		if !visited[t] {
			rest = append(rest, t)
		}
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	return models.JoinPath{Tables: ordered, Edges: orderedEdges, Score: score}
}

func dedupeSorted(tables []string) []string {
	seen := make(map[string]bool, len(tables))
	var out []string
	for _, t := range tables {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type tableCost struct {
	table string
	cost  float64
}

type tableHeap []tableCost

func (h tableHeap) Len() int      { return len(h) }
func (h tableHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h tableHeap) Less(i, j int) bool {
	if math.Abs(h[i].cost-h[j].cost) > 1e-12 {
		return h[i].cost < h[j].cost
	}
	return h[i].table < h[j].table
}
func (h *tableHeap) Push(x any) { *h = append(*h, x.(tableCost)) }
func (h *tableHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
