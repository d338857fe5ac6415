package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateGuardEnforcesPerMinuteBudget(t *testing.T) {
	guard := NewRateGuard()
	clock := time.Unix(1_700_000_000, 0)
	guard.now = func() time.Time { return clock }

	assert.True(t, guard.TryAcquire("json-format", 2))
	assert.True(t, guard.TryAcquire("json-format", 2))
	assert.False(t, guard.TryAcquire("json-format", 2))

	clock = clock.Add(30 * time.Second)
	assert.True(t, guard.TryAcquire("json-format", 2), "one token refills every 30s at 2/min")
	assert.False(t, guard.TryAcquire("json-format", 2))
}

func TestRateGuardUnlimitedWhenNonPositive(t *testing.T) {
	guard := NewRateGuard()
	for i := 0; i < 1000; i++ {
		assert.True(t, guard.TryAcquire("base64", 0))
	}
	assert.Empty(t, guard.Stats())
}

func TestRateGuardCapabilitiesAreIndependent(t *testing.T) {
	guard := NewRateGuard()
	assert.True(t, guard.TryAcquire("a", 1))
	assert.False(t, guard.TryAcquire("a", 1))
	assert.True(t, guard.TryAcquire("b", 1))
}

func TestRateGuardReconfiguresOnLimitChange(t *testing.T) {
	guard := NewRateGuard()
	clock := time.Unix(1_700_000_000, 0)
	guard.now = func() time.Time { return clock }

	assert.True(t, guard.TryAcquire("csv", 1))
	assert.False(t, guard.TryAcquire("csv", 1))

	guard.TryAcquire("csv", 60)
	stats := guard.Stats()["csv"]
	assert.Equal(t, 60, stats.PerMinute)
}
