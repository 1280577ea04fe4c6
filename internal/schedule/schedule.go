// Package schedule orders graph nodes for processing.
package schedule

import "errors"

// ErrCycle is returned when the graph contains a cycle that is not broken
// by a feedback edge.
var ErrCycle = errors.New("graph contains cycle")

// Edge connects two nodes. Feedback edges carry the previous block of the
// source and don't constrain the order.
type Edge[ID comparable] struct {
	From     ID
	To       ID
	Feedback bool
}

// Order returns nodes in topological order using Kahn's algorithm. Nodes
// without ordering constraints keep the order they are listed in. Edges
// between unknown nodes are ignored.
func Order[ID comparable](nodes []ID, edges []Edge[ID]) ([]ID, error) {
	index := make(map[ID]int, len(nodes))
	for i, id := range nodes {
		index[id] = i
	}

	indegree := make([]int, len(nodes))
	outgoing := make([][]int, len(nodes))
	for _, e := range edges {
		if e.Feedback {
			continue
		}
		from, ok := index[e.From]
		if !ok {
			continue
		}
		to, ok := index[e.To]
		if !ok {
			continue
		}
		outgoing[from] = append(outgoing[from], to)
		indegree[to]++
	}

	queue := make([]int, 0, len(nodes))
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]ID, 0, len(nodes))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]

		order = append(order, nodes[i])
		for _, to := range outgoing[i] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, ErrCycle
	}
	return order, nil
}

// WouldCycle returns true if adding the edge to the graph creates a cycle.
// Feedback edges never create cycles.
func WouldCycle[ID comparable](nodes []ID, edges []Edge[ID], e Edge[ID]) bool {
	if e.Feedback {
		return false
	}
	if e.From == e.To {
		return true
	}
	// check if From is reachable from To
	outgoing := make(map[ID][]ID, len(nodes))
	for _, edge := range edges {
		if !edge.Feedback {
			outgoing[edge.From] = append(outgoing[edge.From], edge.To)
		}
	}
	visited := map[ID]bool{e.To: true}
	stack := []ID{e.To}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range outgoing[id] {
			if next == e.From {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
