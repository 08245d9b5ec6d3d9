package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets breaker tests move time instead of sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := NewCircuitBreaker(threshold, cooldown)
	b.now = clock.now
	return b, clock
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

// TestBreaker_OpensAtThreshold verifies three consecutive failures open the
// breaker and block calls.
func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	b.OnFailure()
	b.OnFailure()
	assert.Equal(t, BreakerClosed, b.State(), "two failures stay closed")
	b.OnFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()
	assert.Equal(t, BreakerClosed, b.State(), "counter restarts after a success")
}

// TestBreaker_HalfOpenProbe verifies the cooldown admits exactly one probe
// whose outcome decides the next state.
func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	b.OnFailure()
	assert.False(t, b.Allow(), "open inside cooldown blocks")

	clock.advance(time.Minute)
	assert.True(t, b.Allow(), "cooldown elapsed admits a probe")
	assert.Equal(t, BreakerHalfOpen, b.State())

	b.OnSuccess()
	assert.Equal(t, BreakerClosed, b.State())
}

// TestBreaker_SingleProbeInFlight verifies that after the cooldown only the
// first caller becomes the probe; others are rejected until it settles.
func TestBreaker_SingleProbeInFlight(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	b.OnFailure()
	clock.advance(time.Minute)

	assert.True(t, b.Allow(), "first caller takes the probe slot")
	assert.False(t, b.Allow(), "second caller blocked while probe in flight")
	assert.False(t, b.Allow())

	b.OnSuccess()
	assert.True(t, b.Allow(), "probe success closes and readmits traffic")
}

// TestBreaker_FailedProbeReopens verifies a failed probe restarts the
// cooldown clock.
func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	b.OnFailure()
	clock.advance(time.Minute)
	assert.True(t, b.Allow())

	b.OnFailure()
	assert.Equal(t, BreakerOpen, b.State())
	clock.advance(30 * time.Second)
	assert.False(t, b.Allow(), "half the new cooldown is not enough")
	clock.advance(30 * time.Second)
	assert.True(t, b.Allow())
}
