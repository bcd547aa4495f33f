package graph

import (
	"sort"
	"strings"

	"github.com/squadronhq/squadron/pkg/models"
)

// CycleError reports the full offending cycle for a rejected edge
// insertion, as an ordered id list beginning and ending at the same task.
type CycleError struct {
	// Cycle is the node sequence, e.g. [A B C A].
	Cycle []string
}

// Error renders the cycle as "A -> B -> C -> A".
func (e *CycleError) Error() string {
	return "circular dependency: " + strings.Join(e.Cycle, " -> ")
}

// findHardPathLocked returns a path of task ids from `from` to `to` over
// hard edges, inclusive of both endpoints, or nil if no such path exists.
// Caller holds the lock.
func (g *TaskGraph) findHardPathLocked(from, to string) []string {
	visited := make(map[string]bool)

	var dfs func(id string) []string
	dfs = func(id string) []string {
		if id == to {
			return []string{id}
		}
		visited[id] = true
		for _, edge := range g.deps[id] {
			if edge.Kind != models.DependencyHard {
				continue
			}
			if visited[edge.DependsOn] {
				continue
			}
			if path := dfs(edge.DependsOn); path != nil {
				return append([]string{id}, path...)
			}
		}
		return nil
	}

	return dfs(from)
}

// DetectCycles scans the whole hard-edge subgraph and returns every cycle
// found, each as an ordered id list. A healthy graph returns nothing; this
// exists for periodic health checks, not just insertion-time protection.
func (g *TaskGraph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// DFS with an explicit recursion stack: a back-edge into the stack
	// identifies a cycle.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(g.tasks))
	var stack []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		colors[id] = gray
		stack = append(stack, id)

		for _, edge := range g.deps[id] {
			if edge.Kind != models.DependencyHard {
				continue
			}
			next := edge.DependsOn
			switch colors[next] {
			case white:
				visit(next)
			case gray:
				// Back edge: slice the stack from next's position.
				for i, sid := range stack {
					if sid == next {
						cycle := append([]string(nil), stack[i:]...)
						cycle = append(cycle, next)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
	}

	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	// Sorted start order keeps repeated scans deterministic.
	sort.Strings(ids)
	for _, id := range ids {
		if colors[id] == white {
			visit(id)
		}
	}
	return cycles
}
