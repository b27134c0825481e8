package models

// Graph is the step/connection structure shared by draft journeys and frozen
// versions. It carries no mutable execution state.
type Graph struct {
	Steps       []*Step       `json:"steps"`
	Connections []*Connection `json:"connections"`
}

// StepByID returns the step with the given ID, or nil.
func (g *Graph) StepByID(id string) *Step {
	for _, step := range g.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

// Outgoing returns the connections leaving the given step, in definition order.
func (g *Graph) Outgoing(stepID string) []*Connection {
	var out []*Connection

	for _, conn := range g.Connections {
		if conn.FromStepID == stepID {
			out = append(out, conn)
		}
	}

	return out
}

// EntrySteps returns the steps with no incoming connection. Executions enter
// the graph through these.
func (g *Graph) EntrySteps() []*Step {
	incoming := make(map[string]int, len(g.Steps))
	for _, conn := range g.Connections {
		incoming[conn.ToStepID]++
	}

	var entries []*Step

	for _, step := range g.Steps {
		if incoming[step.ID] == 0 {
			entries = append(entries, step)
		}
	}

	return entries
}

// HasCycle reports whether the graph contains a directed cycle, using Kahn's
// topological sort. Cyclic graphs would make executions non-terminating and
// are rejected at publish time.
func (g *Graph) HasCycle() bool {
	indegree := make(map[string]int, len(g.Steps))
	for _, step := range g.Steps {
		indegree[step.ID] = 0
	}

	for _, conn := range g.Connections {
		if _, ok := indegree[conn.ToStepID]; ok {
			indegree[conn.ToStepID]++
		}
	}

	queue := make([]string, 0, len(g.Steps))

	for id, degree := range indegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, conn := range g.Connections {
			if conn.FromStepID != id {
				continue
			}

			if _, ok := indegree[conn.ToStepID]; !ok {
				continue
			}

			indegree[conn.ToStepID]--
			if indegree[conn.ToStepID] == 0 {
				queue = append(queue, conn.ToStepID)
			}
		}
	}

	return visited != len(g.Steps)
}
