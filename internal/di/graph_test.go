package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/puzzle/errors"
)

func TestDependencyGraph_TopologicalSort(t *testing.T) {
	a := NewToken("a", nil)
	b := NewToken("b", nil)
	c := NewToken("c", nil)
	d := NewToken("d", nil)

	g := NewDependencyGraph()
	g.AddNode(d, []*Token{b, c})
	g.AddNode(a, nil)
	g.AddNode(b, []*Token{a})
	g.AddNode(c, []*Token{a})

	result, err := g.TopologicalSort()
	require.NoError(t, err)

	assert.Equal(t, []*Token{a, b, c, d}, result)
}

func TestDependencyGraph_CheckCycles(t *testing.T) {
	a := NewToken("a", nil)
	b := NewToken("b", nil)
	c := NewToken("c", nil)

	g := NewDependencyGraph()
	g.AddNode(a, []*Token{b})
	g.AddNode(b, []*Token{c})
	g.AddNode(c, []*Token{b})

	err := g.CheckCycles(a)
	require.Error(t, err)
	assert.True(t, errors.IsCircularDependency(err))
	assert.Contains(t, err.Error(), "b -> c -> b")

	_, err = g.TopologicalSort()
	assert.True(t, errors.IsCircularDependency(err))
}

func TestDependencyGraph_MissingNodesAreSkipped(t *testing.T) {
	a := NewToken("a", nil)
	missing := NewToken("missing", nil)

	g := NewDependencyGraph()
	g.AddNode(a, []*Token{missing})

	assert.NoError(t, g.CheckCycles(a))
}
