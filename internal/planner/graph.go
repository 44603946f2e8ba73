package planner

import (
	"sort"

	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
)

// Graph is the trigger closure: nodes are function ids, edges mean "target
// runs after source produced a new data version". Node and edge insertion
// order does not matter; traversal is deterministic by id.
type Graph struct {
	nodes map[string]bool
	// out[source] = set of targets
	out map[string]map[string]bool
	in  map[string]map[string]bool
}

func NewGraph() *Graph {
	return &Graph{
		nodes: map[string]bool{},
		out:   map[string]map[string]bool{},
		in:    map[string]map[string]bool{},
	}
}

func (g *Graph) AddNode(id string) {
	g.nodes[id] = true
}

func (g *Graph) AddEdge(source, target string) {
	g.AddNode(source)
	g.AddNode(target)
	if g.out[source] == nil {
		g.out[source] = map[string]bool{}
	}
	if g.in[target] == nil {
		g.in[target] = map[string]bool{}
	}
	g.out[source][target] = true
	g.in[target][source] = true
}

func (g *Graph) Has(id string) bool { return g.nodes[id] }

func (g *Graph) Len() int { return len(g.nodes) }

// TopoOrder returns the nodes in dependency order, ids sorted within each
// rank so equal inputs produce equal plans. Cycles are Invalid.
func (g *Graph) TopoOrder() ([]string, error) {
	indegree := map[string]int{}
	for id := range g.nodes {
		indegree[id] = len(g.in[id])
	}

	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		targets := make([]string, 0, len(g.out[id]))
		for t := range g.out[id] {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, t := range targets {
			indegree[t]--
			if indegree[t] == 0 {
				ready = append(ready, t)
			}
		}
		sort.Strings(ready)
	}

	if len(order) != len(g.nodes) {
		return nil, apierr.New(apierr.Invalid, "trigger graph contains a cycle")
	}
	return order, nil
}
