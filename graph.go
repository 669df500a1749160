package qutex

import (
	floyds "github.com/joeycumines/go-detect-cycle/floyds"
)

// DependencyGraph is the transient "wants a lock held by" digraph built from
// the acquisition-history tracker: nodes are suspect continuations, and an
// edge A -> B means A's wanted qutex is held somewhere in B's ancestor
// chain. A cycle is a set of sequences none of which can ever progress.
type DependencyGraph struct {
	adjacency map[*Serialized]map[*Serialized]struct{}
}

func newDependencyGraph() *DependencyGraph {
	return &DependencyGraph{adjacency: make(map[*Serialized]map[*Serialized]struct{})}
}

// addNode ensures node exists in the graph.
func (g *DependencyGraph) addNode(node *Serialized) {
	if _, ok := g.adjacency[node]; !ok {
		g.adjacency[node] = make(map[*Serialized]struct{})
	}
}

// addEdge adds source -> target, creating either node as needed.
func (g *DependencyGraph) addEdge(source, target *Serialized) {
	g.addNode(source)
	g.addNode(target)
	g.adjacency[source][target] = struct{}{}
}

// NodeCount returns the number of nodes.
func (g *DependencyGraph) NodeCount() int { return len(g.adjacency) }

// hasCycles reports whether the graph contains at least one cycle, using
// Floyd's branching detection. This is the cheap predicate gating the
// path-enumerating search in findCycles.
func (g *DependencyGraph) hasCycles() bool {
	var check func(node *Serialized, detector floyds.BranchingDetector) bool
	check = func(node *Serialized, detector floyds.BranchingDetector) bool {
		for next := range g.adjacency[node] {
			if func() bool {
				forked := detector.Hare(next)
				defer forked.Clear()
				if !detector.Ok() {
					return true
				}
				return check(next, forked)
			}() {
				return true
			}
		}
		return false
	}
	for node := range g.adjacency {
		if check(node, floyds.NewBranchingDetector(node, nil)) {
			return true
		}
	}
	return false
}

// findCycles enumerates the graph's cycles via DFS. Each cycle is returned
// as the path of nodes from the cycle's entry point, with the entry point
// repeated at the end to close the loop.
//
// A node is only expanded once across the whole search, so overlapping
// cycles through an already-visited node may be folded into a single report;
// the diagnostics only need each stuck participant to appear somewhere.
func (g *DependencyGraph) findCycles() [][]*Serialized {
	visited := make(map[*Serialized]struct{}, len(g.adjacency))
	onStack := make(map[*Serialized]struct{})
	var path []*Serialized
	var cycles [][]*Serialized

	var dfs func(node *Serialized)
	dfs = func(node *Serialized) {
		visited[node] = struct{}{}
		onStack[node] = struct{}{}
		path = append(path, node)

		for next := range g.adjacency[node] {
			if _, ok := onStack[next]; ok {
				// Found a back edge: the cycle is the path suffix starting
				// at next.
				for i, n := range path {
					if n == next {
						cycle := make([]*Serialized, 0, len(path)-i+1)
						cycle = append(cycle, path[i:]...)
						cycle = append(cycle, next)
						cycles = append(cycles, cycle)
						break
					}
				}
			} else if _, ok := visited[next]; !ok {
				dfs(next)
			}
		}

		delete(onStack, node)
		path = path[:len(path)-1]
	}

	for node := range g.adjacency {
		if _, ok := visited[node]; !ok {
			dfs(node)
		}
	}

	return cycles
}
