package execution

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyage-hq/voyage/pkg/models"
)

func splitConnections(weights ...string) []*models.Connection {
	conns := make([]*models.Connection, len(weights))
	for i, weight := range weights {
		conns[i] = &models.Connection{
			ID:         fmt.Sprintf("conn-%d", i),
			FromStepID: "split-1",
			ToStepID:   fmt.Sprintf("target-%d", i),
			Label:      weight,
		}
	}

	return conns
}

func TestPickSplitConnection_Deterministic(t *testing.T) {
	conns := splitConnections("50", "50")

	first, err := pickSplitConnection("exec-1", "split-1", conns)
	require.NoError(t, err)

	// The same execution and step always land on the same branch.
	for range 20 {
		again, err := pickSplitConnection("exec-1", "split-1", conns)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestPickSplitConnection_VariesAcrossExecutions(t *testing.T) {
	conns := splitConnections("50", "50")
	picked := make(map[string]bool)

	for i := range 100 {
		conn, err := pickSplitConnection(fmt.Sprintf("exec-%d", i), "split-1", conns)
		require.NoError(t, err)

		picked[conn.ID] = true
	}

	// With 100 executions over a 50/50 split both branches get traffic.
	assert.Len(t, picked, 2)
}

func TestPickSplitConnection_RespectsWeights(t *testing.T) {
	conns := splitConnections("90", "10")
	counts := make(map[string]int)

	for i := range 1000 {
		conn, err := pickSplitConnection(fmt.Sprintf("exec-%d", i), "split-1", conns)
		require.NoError(t, err)

		counts[conn.ID]++
	}

	assert.Greater(t, counts["conn-0"], counts["conn-1"])
}

func TestPickSplitConnection_Errors(t *testing.T) {
	_, err := pickSplitConnection("exec-1", "split-1", nil)
	assert.ErrorIs(t, err, models.ErrGraphIntegrity)

	_, err = pickSplitConnection("exec-1", "split-1", splitConnections("most", "10"))
	assert.ErrorIs(t, err, models.ErrGraphIntegrity)
}
