// Package governor enforces session lifetime limits: silence detection with a
// warn-then-terminate escalation, a hard duration ceiling, and a cumulative
// cost ceiling. It runs as a periodic check independent of the conversation
// loop and can end the session unilaterally.
package governor

import (
	"context"
	"sync"
	"time"

	"github.com/trialvoice-core/engine/internal/agent/model"
	logx "github.com/trialvoice-core/engine/pkg/logger"
)

// silenceState is the governor's silence escalation ladder.
type silenceState int

const (
	silenceNormal silenceState = iota
	silenceWarning
)

// Speaker delivers governor-initiated notices to the caller. Session-ending
// notices must not be barged over, so they go out uninterruptible.
type Speaker interface {
	SpeakUninterruptible(ctx context.Context, text string) error
}

const (
	silencePrompt  = "Are you still there? I'm happy to keep going whenever you're ready."
	silenceGoodbye = "It sounds like now isn't a good time. Feel free to call back whenever works for you. Goodbye!"
	timeGoodbye    = "We're coming up on our time limit for this call. Thanks so much for your interest, and we'll follow up with everything we covered. Goodbye!"
	costGoodbye    = "Thanks for your time today. We'll send a summary of everything we discussed. Goodbye!"
)

// Governor watches the session clock, silence, and accumulated cost. The end
// callback fires exactly once with the first reason that applied.
type Governor struct {
	mu         sync.Mutex
	limits     model.SessionLimitsConfig
	speaker    Speaker
	onEnd      func(reason model.DisconnectReason)
	start      time.Time
	lastSpeech time.Time
	warnedAt   time.Time
	silence    silenceState
	costUSD    float64
	ended      bool
	stop       chan struct{}
	now        func() time.Time
}

// New builds a governor; the clock starts immediately.
func New(limits model.SessionLimitsConfig, speaker Speaker, onEnd func(model.DisconnectReason)) *Governor {
	g := &Governor{
		limits:  limits,
		speaker: speaker,
		onEnd:   onEnd,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	g.start = g.now()
	g.lastSpeech = g.start
	return g
}

// Run ticks until the context is cancelled or the session ends. Call in its
// own goroutine.
func (g *Governor) Run(ctx context.Context) {
	ticker := time.NewTicker(g.limits.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stop:
			return
		case <-ticker.C:
			g.Check(ctx)
		}
	}
}

// SpeechActivity notes a caller utterance, resetting the silence ladder.
func (g *Governor) SpeechActivity() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSpeech = g.now()
	if g.silence == silenceWarning {
		logx.Info().Msg("Caller resumed speaking, silence warning cleared")
	}
	g.silence = silenceNormal
}

// AddCost accrues attributed spend toward the cost ceiling.
func (g *Governor) AddCost(usd float64) {
	g.mu.Lock()
	g.costUSD += usd
	g.mu.Unlock()
}

// Cost returns the accumulated session cost.
func (g *Governor) Cost() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.costUSD
}

// Elapsed returns time since session start.
func (g *Governor) Elapsed() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Sub(g.start)
}

// Check runs one governor evaluation. Decisions are taken under the lock;
// speaking and ending happen after it is released.
func (g *Governor) Check(ctx context.Context) {
	g.mu.Lock()
	if g.ended {
		g.mu.Unlock()
		return
	}
	now := g.now()

	var reason model.DisconnectReason
	var farewell, prompt string

	switch {
	case now.Sub(g.start) >= g.limits.MaxDuration:
		reason = model.DisconnectTimeLimit
		farewell = timeGoodbye
	case g.costUSD >= g.limits.MaxCostUSD:
		reason = model.DisconnectCostLimit
		farewell = costGoodbye
	case g.silence == silenceWarning && now.Sub(g.warnedAt) >= g.limits.SilenceGrace:
		reason = model.DisconnectSilenceTimeout
		farewell = silenceGoodbye
	case g.silence == silenceNormal && now.Sub(g.lastSpeech) >= g.limits.SilenceTimeout:
		g.silence = silenceWarning
		g.warnedAt = now
		prompt = silencePrompt
	}
	g.mu.Unlock()

	if prompt != "" {
		logx.Info().Msg("Silence threshold reached, prompting caller")
		if err := g.speaker.SpeakUninterruptible(ctx, prompt); err != nil {
			logx.Warn().Err(err).Msg("Failed to deliver silence prompt")
		}
		return
	}
	if reason != "" {
		if err := g.speaker.SpeakUninterruptible(ctx, farewell); err != nil {
			logx.Warn().Err(err).Msg("Failed to deliver farewell")
		}
		g.End(reason)
	}
}

// End finishes the session with the given reason. Only the first call has
// any effect; the recorded reason never changes afterwards.
func (g *Governor) End(reason model.DisconnectReason) {
	g.mu.Lock()
	if g.ended {
		g.mu.Unlock()
		return
	}
	g.ended = true
	close(g.stop)
	g.mu.Unlock()

	logx.Info().Str("reason", string(reason)).Msg("Session ended")
	if g.onEnd != nil {
		g.onEnd(reason)
	}
}

// Ended reports whether the session has finished.
func (g *Governor) Ended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ended
}
