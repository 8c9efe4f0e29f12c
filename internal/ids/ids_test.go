package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_SortableAndValid(t *testing.T) {
	prev := New()
	require.True(t, Valid(prev))

	for i := 0; i < 100; i++ {
		next := New()
		require.True(t, Valid(next))
		require.Less(t, prev, next)
		prev = next
	}
}

func TestNewAt_SameMillisecondStaysMonotonic(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewAt(at)
	b := NewAt(at)
	require.Less(t, a, b)
}

func TestValid_RejectsGarbage(t *testing.T) {
	require.False(t, Valid(""))
	require.False(t, Valid("not-a-ulid"))
}
