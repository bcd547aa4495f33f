package coordinator

import (
	"fmt"
	"sort"
	"strings"
)

// DeadlockError reports the agents caught in a wait cycle.
type DeadlockError struct {
	Agents []string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("deadlock between agents %s", strings.Join(e.Agents, ", "))
}

// DetectDeadlock builds the wait-for graph from the queued requests and the
// lock table and returns the agents of the first cycle found, or nil when
// the system is deadlock free.
func (c *Coordinator) DetectDeadlock() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	cycle := c.firstWaitCycleLocked()
	if len(cycle) > 0 {
		c.log.Errorf("coordinator", "deadlock detected: %v", cycle)
		c.emitLocked(Event{Kind: EventDeadlockDetected, Agents: cycle, Timestamp: c.clock()})
	}
	return cycle
}

// waitForLocked builds the wait-for adjacency: an edge waiter -> holder
// exists when a queued request needs a resource the holder has locked.
func (c *Coordinator) waitForLocked() map[string][]string {
	edges := make(map[string]map[string]bool)
	for _, req := range c.queue {
		for _, res := range req.Resources {
			info, ok := c.locks[res]
			if !ok || info.Holder == req.AgentID {
				continue
			}
			if edges[req.AgentID] == nil {
				edges[req.AgentID] = make(map[string]bool)
			}
			edges[req.AgentID][info.Holder] = true
		}
	}

	waitFor := make(map[string][]string, len(edges))
	for waiter, holders := range edges {
		for holder := range holders {
			waitFor[waiter] = append(waitFor[waiter], holder)
		}
		sort.Strings(waitFor[waiter])
	}
	return waitFor
}

// firstWaitCycleLocked searches the wait-for graph depth first from every
// waiter in sorted order and returns the first cycle's agents.
func (c *Coordinator) firstWaitCycleLocked() []string {
	waitFor := c.waitForLocked()

	starts := make([]string, 0, len(waitFor))
	for waiter := range waitFor {
		starts = append(starts, waiter)
	}
	sort.Strings(starts)

	visited := make(map[string]bool)
	for _, start := range starts {
		if visited[start] {
			continue
		}
		if cycle := dfsWaitCycle(start, waitFor, visited, make(map[string]bool), nil); cycle != nil {
			return cycle
		}
	}
	return nil
}

// waitCycleLocked returns the wait cycle containing the given agent, or nil.
// Any cycle through the agent is reachable from the agent, so a single DFS
// rooted there suffices.
func (c *Coordinator) waitCycleLocked(agentID string) []string {
	waitFor := c.waitForLocked()
	cycle := dfsWaitCycle(agentID, waitFor, make(map[string]bool), make(map[string]bool), nil)
	for _, id := range cycle {
		if id == agentID {
			return cycle
		}
	}
	return nil
}

// dfsWaitCycle walks the wait-for graph keeping the current path; an edge
// back into the path yields that portion of the path as the cycle.
func dfsWaitCycle(node string, waitFor map[string][]string, visited, onPath map[string]bool, path []string) []string {
	visited[node] = true
	onPath[node] = true
	path = append(path, node)

	for _, next := range waitFor[node] {
		if onPath[next] {
			for i, id := range path {
				if id == next {
					return append([]string(nil), path[i:]...)
				}
			}
		}
		if !visited[next] {
			if cycle := dfsWaitCycle(next, waitFor, visited, onPath, path); cycle != nil {
				return cycle
			}
		}
	}

	onPath[node] = false
	return nil
}
