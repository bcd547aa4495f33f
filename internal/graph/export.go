package graph

import (
	"sort"
	"time"

	"github.com/gammazero/toposort"

	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// Export is a serializable snapshot of the graph. Tasks appear in
// topological order of the hard-edge subgraph so a consumer can replay
// them front to back.
type Export struct {
	// Tasks in dependency order (hard edges respected).
	Tasks []*models.Task `json:"tasks" yaml:"tasks"`
	// Edges lists every dependency edge, hard and soft.
	Edges []models.DependencyEdge `json:"edges" yaml:"edges"`
	// GeneratedAt is when the snapshot was taken.
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// ExportData snapshots the whole graph for persistence or rendering.
func (g *TaskGraph) ExportData() (*Export, error) {
	const op = "graph.ExportData"

	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []toposort.Edge
	for id := range g.tasks {
		hasHard := false
		for _, edge := range g.deps[id] {
			if edge.Kind == models.DependencyHard {
				// Edge (dep, task): the dependency sorts first.
				edges = append(edges, toposort.Edge{edge.DependsOn, id})
				hasHard = true
			}
		}
		if !hasHard {
			// Anchor dependency-free tasks so they appear in the sort.
			edges = append(edges, toposort.Edge{nil, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		// Hard edges are kept acyclic on insertion, so this indicates
		// internal corruption rather than caller error.
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}

	export := &Export{GeneratedAt: g.clock()}
	for _, raw := range sorted {
		if raw == nil {
			continue
		}
		id := raw.(string)
		if task, ok := g.tasks[id]; ok {
			export.Tasks = append(export.Tasks, task.Clone())
		}
	}
	ids := make([]string, 0, len(g.deps))
	for id := range g.deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		export.Edges = append(export.Edges, g.deps[id]...)
	}
	return export, nil
}
