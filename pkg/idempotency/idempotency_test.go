package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SeenAfterRecord(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "execution.step.available:evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Record(ctx, "execution.step.available:evt-1"))

	seen, err = store.Seen(ctx, "execution.step.available:evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Other keys are unaffected.
	seen, err = store.Seen(ctx, "execution.step.available:evt-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryStore_ExpiredKeysForgotten(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "key"))
	time.Sleep(5 * time.Millisecond)

	seen, err := store.Seen(ctx, "key")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestNewMemoryStore_DefaultsTTL(t *testing.T) {
	store := NewMemoryStore(0)

	assert.Equal(t, DefaultTTL, store.ttl)
}
