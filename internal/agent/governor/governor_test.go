package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialvoice-core/engine/internal/agent/model"
)

// recordingSpeaker captures governor notices.
type recordingSpeaker struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSpeaker) SpeakUninterruptible(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
	return nil
}

func (s *recordingSpeaker) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testLimits() model.SessionLimitsConfig {
	return model.SessionLimitsConfig{
		MaxDuration:    30 * time.Minute,
		MaxCostUSD:     5.0,
		SilenceTimeout: 30 * time.Second,
		SilenceGrace:   10 * time.Second,
		TickInterval:   time.Second,
	}
}

func newTestGovernor(limits model.SessionLimitsConfig) (*Governor, *recordingSpeaker, *fakeClock, *model.DisconnectReason) {
	speaker := &recordingSpeaker{}
	var reason model.DisconnectReason
	clock := &fakeClock{t: time.Unix(1700000000, 0)}

	g := New(limits, speaker, func(r model.DisconnectReason) { reason = r })
	g.now = clock.now
	g.start = clock.now()
	g.lastSpeech = clock.now()
	return g, speaker, clock, &reason
}

// TestSilence_WarningThenRecovery verifies speech inside the grace period
// returns the silence ladder to normal without ending the session.
func TestSilence_WarningThenRecovery(t *testing.T) {
	g, speaker, clock, reason := newTestGovernor(testLimits())
	ctx := context.Background()

	clock.advance(30 * time.Second)
	g.Check(ctx)
	require.Len(t, speaker.spoken(), 1, "silence boundary triggers the prompt, not termination")
	assert.Contains(t, speaker.spoken()[0], "still there")
	assert.False(t, g.Ended())

	clock.advance(5 * time.Second)
	g.SpeechActivity()
	clock.advance(20 * time.Second)
	g.Check(ctx)
	assert.False(t, g.Ended(), "recovered session keeps running")
	assert.Empty(t, *reason)
}

// TestSilence_FullTimeout verifies an unanswered warning ends the session
// with a goodbye after the full grace period.
func TestSilence_FullTimeout(t *testing.T) {
	g, speaker, clock, reason := newTestGovernor(testLimits())
	ctx := context.Background()

	clock.advance(30 * time.Second)
	g.Check(ctx)
	require.False(t, g.Ended())

	clock.advance(9 * time.Second)
	g.Check(ctx)
	assert.False(t, g.Ended(), "grace period not yet elapsed")

	clock.advance(time.Second)
	g.Check(ctx)
	assert.True(t, g.Ended())
	assert.Equal(t, model.DisconnectSilenceTimeout, *reason)
	require.Len(t, speaker.spoken(), 2, "prompt then goodbye")
}

func TestCeiling_Duration(t *testing.T) {
	g, speaker, clock, reason := newTestGovernor(testLimits())

	clock.advance(29 * time.Minute)
	g.SpeechActivity()
	clock.advance(time.Minute)
	g.Check(context.Background())

	assert.True(t, g.Ended())
	assert.Equal(t, model.DisconnectTimeLimit, *reason)
	require.Len(t, speaker.spoken(), 1)
}

func TestCeiling_Cost(t *testing.T) {
	g, _, clock, reason := newTestGovernor(testLimits())

	g.AddCost(2.5)
	clock.advance(time.Second)
	g.SpeechActivity()
	g.Check(context.Background())
	assert.False(t, g.Ended(), "under the ceiling keeps running")

	g.AddCost(2.5)
	g.Check(context.Background())
	assert.True(t, g.Ended())
	assert.Equal(t, model.DisconnectCostLimit, *reason)
	assert.Equal(t, 5.0, g.Cost())
}

// TestEnd_ExactlyOnce verifies the first recorded reason wins and later
// checks are no-ops.
func TestEnd_ExactlyOnce(t *testing.T) {
	g, speaker, clock, reason := newTestGovernor(testLimits())

	g.End(model.DisconnectUserInitiated)
	require.Equal(t, model.DisconnectUserInitiated, *reason)

	clock.advance(time.Hour)
	g.Check(context.Background())
	g.End(model.DisconnectTimeLimit)

	assert.Equal(t, model.DisconnectUserInitiated, *reason, "reason written exactly once")
	assert.Empty(t, speaker.spoken(), "no notices after the session ended")
}

// TestCheck_DurationWinsOverCost verifies mutually exclusive termination:
// when both ceilings are crossed, one reason is recorded.
func TestCheck_DurationWinsOverCost(t *testing.T) {
	g, _, clock, reason := newTestGovernor(testLimits())

	g.AddCost(10)
	clock.advance(time.Hour)
	g.Check(context.Background())

	assert.Equal(t, model.DisconnectTimeLimit, *reason)
}

func TestRun_TicksUntilEnded(t *testing.T) {
	limits := testLimits()
	limits.TickInterval = 5 * time.Millisecond
	limits.SilenceTimeout = 10 * time.Millisecond
	limits.SilenceGrace = 10 * time.Millisecond

	speaker := &recordingSpeaker{}
	var mu sync.Mutex
	var reason model.DisconnectReason
	g := New(limits, speaker, func(r model.DisconnectReason) {
		mu.Lock()
		reason = r
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go g.Run(ctx)

	assert.Eventually(t, g.Ended, 500*time.Millisecond, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, model.DisconnectSilenceTimeout, reason)
}
