package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/voyage-hq/voyage/pkg/models"
)

func buildGraph(stepIDs []string, connections [][2]string) models.Graph {
	graph := models.Graph{}

	for _, id := range stepIDs {
		graph.Steps = append(graph.Steps, &models.Step{ID: id, Type: models.StepTypeAction})
	}

	for i, pair := range connections {
		graph.Connections = append(graph.Connections, &models.Connection{
			ID:         "conn-" + string(rune('a'+i)),
			FromStepID: pair[0],
			ToStepID:   pair[1],
		})
	}

	return graph
}

func TestGraph_StepByID(t *testing.T) {
	graph := buildGraph([]string{"a", "b"}, nil)

	assert.NotNil(t, graph.StepByID("a"))
	assert.Equal(t, "b", graph.StepByID("b").ID)
	assert.Nil(t, graph.StepByID("missing"))
}

func TestGraph_Outgoing_PreservesDefinitionOrder(t *testing.T) {
	graph := buildGraph([]string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"a", "c"}})

	outgoing := graph.Outgoing("a")

	assert.Len(t, outgoing, 2)
	assert.Equal(t, "b", outgoing[0].ToStepID)
	assert.Equal(t, "c", outgoing[1].ToStepID)
	assert.Empty(t, graph.Outgoing("c"))
}

func TestGraph_EntrySteps(t *testing.T) {
	tests := []struct {
		name        string
		steps       []string
		connections [][2]string
		expected    []string
	}{
		{
			name:     "single step is its own entry",
			steps:    []string{"a"},
			expected: []string{"a"},
		},
		{
			name:        "linear chain has one entry",
			steps:       []string{"a", "b", "c"},
			connections: [][2]string{{"a", "b"}, {"b", "c"}},
			expected:    []string{"a"},
		},
		{
			name:        "two disconnected roots are both entries",
			steps:       []string{"a", "b", "c"},
			connections: [][2]string{{"a", "c"}},
			expected:    []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := buildGraph(tt.steps, tt.connections)

			var entryIDs []string
			for _, step := range graph.EntrySteps() {
				entryIDs = append(entryIDs, step.ID)
			}

			assert.ElementsMatch(t, tt.expected, entryIDs)
		})
	}
}

func TestGraph_HasCycle(t *testing.T) {
	tests := []struct {
		name        string
		steps       []string
		connections [][2]string
		cyclic      bool
	}{
		{
			name:        "linear chain",
			steps:       []string{"a", "b", "c"},
			connections: [][2]string{{"a", "b"}, {"b", "c"}},
			cyclic:      false,
		},
		{
			name:        "diamond is acyclic",
			steps:       []string{"a", "b", "c", "d"},
			connections: [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}},
			cyclic:      false,
		},
		{
			name:        "self loop",
			steps:       []string{"a"},
			connections: [][2]string{{"a", "a"}},
			cyclic:      true,
		},
		{
			name:        "back edge",
			steps:       []string{"a", "b", "c"},
			connections: [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}},
			cyclic:      true,
		},
		{
			name:        "cycle reachable only from middle",
			steps:       []string{"a", "b", "c", "d"},
			connections: [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "b"}},
			cyclic:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := buildGraph(tt.steps, tt.connections)

			assert.Equal(t, tt.cyclic, graph.HasCycle())
		})
	}
}
