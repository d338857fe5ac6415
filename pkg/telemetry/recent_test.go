package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

func TestRecentEventsEvictsOldestFirst(t *testing.T) {
	ring := NewRecentEvents(3)
	for _, id := range []string{"a", "b", "c"} {
		assert.False(t, ring.Add(domain.ExecutionEvent{RunID: id}))
	}
	assert.True(t, ring.Add(domain.ExecutionEvent{RunID: "d"}))
	require.NoError(t, ring.Record(context.Background(), domain.ExecutionEvent{RunID: "e"}))

	got := ring.Snapshot(0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"e", "d", "c"}, []string{got[0].RunID, got[1].RunID, got[2].RunID})

	limited := ring.Snapshot(1)
	require.Len(t, limited, 1)
	assert.Equal(t, "e", limited[0].RunID)
	assert.Equal(t, 3, ring.Len())
}

func TestRecentEventsFedFromBus(t *testing.T) {
	ring := NewRecentEvents(0)
	bus := NewBusSink(nil)
	done := make(chan struct{}, 1)
	cancel := bus.Subscribe(func(ev domain.ExecutionEvent) {
		ring.Add(ev)
		done <- struct{}{}
	})
	defer cancel()

	require.NoError(t, bus.Record(context.Background(), domain.ExecutionEvent{RunID: "x"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber did not receive the event")
	}
	assert.Equal(t, "x", ring.Snapshot(1)[0].RunID)
}
