package execution

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"

	"github.com/voyage-hq/voyage/pkg/models"
)

// pickSplitConnection selects an outgoing connection by weight. The choice
// is seeded from (executionID, stepID) so replaying or re-evaluating the
// same step of the same execution always takes the same branch.
func pickSplitConnection(executionID, stepID string, outgoing []*models.Connection) (*models.Connection, error) {
	if len(outgoing) == 0 {
		return nil, fmt.Errorf("%w: split step %s has no outgoing connections", models.ErrGraphIntegrity, stepID)
	}

	total := 0
	weights := make([]int, len(outgoing))

	for i, conn := range outgoing {
		weight, err := strconv.Atoi(conn.Label)
		if err != nil || weight <= 0 {
			return nil, fmt.Errorf("%w: split step %s connection %s has non-weight label %q", models.ErrGraphIntegrity, stepID, conn.ID, conn.Label)
		}

		weights[i] = weight
		total += weight
	}

	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(executionID))
	_, _ = hasher.Write([]byte{':'})
	_, _ = hasher.Write([]byte(stepID))

	rng := rand.New(rand.NewSource(int64(hasher.Sum64()))) //nolint:gosec // deterministic branch selection, not security

	pick := rng.Intn(total)

	for i, conn := range outgoing {
		pick -= weights[i]
		if pick < 0 {
			return conn, nil
		}
	}

	return outgoing[len(outgoing)-1], nil
}
