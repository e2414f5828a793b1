package graph

import "github.com/songzhibin97/mediaflow/types"

// Sort returns node ids in execution order using Kahn's algorithm.
// Ready nodes are taken in their original array order, so the result is deterministic.
// A result shorter than nodes means the graph contains a cycle.
func Sort(nodes []types.Node, edges []types.Edge) []string {
	indeg := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indeg[n.ID] = 0
	}

	out := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if _, ok := indeg[e.Source]; !ok {
			continue
		}
		if _, ok := indeg[e.Target]; !ok {
			continue
		}
		out[e.Source] = append(out[e.Source], e.Target)
		indeg[e.Target]++
	}

	queue := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if indeg[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, succ := range out[id] {
			indeg[succ]--
			if indeg[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	return order
}

// Order returns the execution order of g or a *CycleError.
func Order(g types.WorkflowGraph) ([]string, error) {
	order := Sort(g.Nodes, g.Edges)
	if len(order) == len(g.Nodes) {
		return order, nil
	}

	sorted := make(map[string]bool, len(order))
	for _, id := range order {
		sorted[id] = true
	}
	var unresolved []string
	for _, n := range g.Nodes {
		if !sorted[n.ID] {
			unresolved = append(unresolved, n.ID)
		}
	}
	return nil, &CycleError{Unresolved: unresolved}
}

// Upstream returns the distinct direct sources of id, in edge order.
func Upstream(g types.WorkflowGraph, id string) []string {
	seen := make(map[string]bool)
	var ups []string
	for _, e := range g.Edges {
		if e.Target == id && !seen[e.Source] {
			seen[e.Source] = true
			ups = append(ups, e.Source)
		}
	}
	return ups
}

// Dependents returns every node reachable downstream of id, breadth first.
func Dependents(g types.WorkflowGraph, id string) []string {
	out := make(map[string][]string)
	for _, e := range g.Edges {
		out[e.Source] = append(out[e.Source], e.Target)
	}

	seen := map[string]bool{id: true}
	var deps []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range out[cur] {
			if seen[next] {
				continue
			}
			seen[next] = true
			deps = append(deps, next)
			queue = append(queue, next)
		}
	}
	return deps
}
