package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoOrderLinear(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	order, err := g.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopoOrderDiamond(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")
	g.AddEdge("b", "d")
	g.AddEdge("c", "d")

	order, err := g.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestTopoOrderDeterministic(t *testing.T) {
	build := func(edges [][2]string) []string {
		g := NewGraph()
		for _, e := range edges {
			g.AddEdge(e[0], e[1])
		}
		order, err := g.TopoOrder()
		require.NoError(t, err)
		return order
	}

	// Equal graphs built in different insertion orders plan identically.
	first := build([][2]string{{"a", "b"}, {"a", "c"}, {"c", "d"}, {"b", "d"}})
	second := build([][2]string{{"b", "d"}, {"c", "d"}, {"a", "c"}, {"a", "b"}})
	assert.Equal(t, first, second)
}

func TestTopoOrderCycleRejected(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	_, err := g.TopoOrder()
	assert.Error(t, err)
}

func TestTopoOrderSingleNode(t *testing.T) {
	g := NewGraph()
	g.AddNode("only")

	order, err := g.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, order)
}
