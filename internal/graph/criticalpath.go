package graph

import (
	"sort"
	"time"

	"github.com/squadronhq/squadron/pkg/models"
)

// CriticalPath returns the longest-duration chain of hard dependencies in
// the graph, in execution order, along with its total estimated duration.
// Path lengths are memoized until the next mutation. Ties between
// dependencies are broken by edge insertion order.
func (g *TaskGraph) CriticalPath() ([]string, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pathMemo == nil {
		g.computePathsLocked()
	}

	// Pick the task with the greatest path length; ties broken by id so
	// the answer is stable.
	var endID string
	var best time.Duration = -1
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if g.pathMemo[id] > best {
			best = g.pathMemo[id]
			endID = id
		}
	}
	if endID == "" {
		return nil, 0
	}

	// Walk the chosen-dependency chain back to a root, then reverse so the
	// path reads in execution order.
	var reversed []string
	for id := endID; id != ""; id = g.pathChoice[id] {
		reversed = append(reversed, id)
	}
	path := make([]string, len(reversed))
	for i, id := range reversed {
		path[len(path)-1-i] = id
	}
	return path, best
}

// computePathsLocked fills pathMemo and pathChoice for every task:
// length(t) = estimate(t) + max over hard dependencies of length(dep).
// The first dependency achieving the maximum (in insertion order) is the
// recorded choice.
func (g *TaskGraph) computePathsLocked() {
	g.pathMemo = make(map[string]time.Duration, len(g.tasks))
	g.pathChoice = make(map[string]string, len(g.tasks))
	done := make(map[string]bool, len(g.tasks))

	var visit func(id string) time.Duration
	visit = func(id string) time.Duration {
		if done[id] {
			return g.pathMemo[id]
		}
		done[id] = true // acyclicity of hard edges makes this safe

		task := g.tasks[id]
		var longest time.Duration
		var choice string
		firstDep := true
		for _, edge := range g.deps[id] {
			if edge.Kind != models.DependencyHard {
				continue
			}
			if _, ok := g.tasks[edge.DependsOn]; !ok {
				continue
			}
			depLen := visit(edge.DependsOn)
			// Strict > keeps the first maximizing dependency on ties.
			if firstDep || depLen > longest {
				longest = depLen
				choice = edge.DependsOn
				firstDep = false
			}
		}

		total := task.EstimatedDuration + longest
		g.pathMemo[id] = total
		g.pathChoice[id] = choice
		return total
	}

	for id := range g.tasks {
		visit(id)
	}
}
