package di

import (
	"github.com/xraph/puzzle/errors"
)

// DependencyGraph is a snapshot of registry keys and the manifests of the
// recipes stored under them.
type DependencyGraph struct {
	nodes map[*Token][]*Token
	order []*Token
}

// NewDependencyGraph creates an empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[*Token][]*Token),
	}
}

// AddNode adds a key with the dependencies of the recipe it resolves to.
func (g *DependencyGraph) AddNode(key *Token, dependencies []*Token) {
	if _, exists := g.nodes[key]; !exists {
		g.order = append(g.order, key)
	}

	g.nodes[key] = dependencies
}

// TopologicalSort returns keys in dependency order. Keys without
// dependencies keep their insertion order. Dependencies that are not nodes
// are skipped here; resolution reports them.
func (g *DependencyGraph) TopologicalSort() ([]*Token, error) {
	visited := make(map[*Token]bool)
	visiting := make(map[*Token]bool)
	result := make([]*Token, 0, len(g.nodes))

	for _, key := range g.order {
		var chain []*Token
		if err := g.visit(key, visited, visiting, &chain, &result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// CheckCycles walks the graph reachable from root and reports the first
// cycle found.
func (g *DependencyGraph) CheckCycles(root *Token) error {
	var (
		chain  []*Token
		result []*Token
	)

	return g.visit(root, make(map[*Token]bool), make(map[*Token]bool), &chain, &result)
}

func (g *DependencyGraph) visit(key *Token, visited, visiting map[*Token]bool, chain, result *[]*Token) error {
	if visited[key] {
		return nil
	}

	if visiting[key] {
		return errors.ErrCircularDependency(cycleNames(*chain, key))
	}

	deps, ok := g.nodes[key]
	if !ok {
		return nil
	}

	visiting[key] = true
	*chain = append(*chain, key)

	for _, dep := range deps {
		if err := g.visit(dep, visited, visiting, chain, result); err != nil {
			return err
		}
	}

	*chain = (*chain)[:len(*chain)-1]
	visiting[key] = false
	visited[key] = true
	*result = append(*result, key)

	return nil
}

// cycleNames renders the chain from the first occurrence of key back to key.
func cycleNames(chain []*Token, key *Token) []string {
	start := 0

	for i, tok := range chain {
		if tok == key {
			start = i

			break
		}
	}

	names := make([]string, 0, len(chain)-start+1)
	for _, tok := range chain[start:] {
		names = append(names, tok.Name())
	}

	return append(names, key.Name())
}
