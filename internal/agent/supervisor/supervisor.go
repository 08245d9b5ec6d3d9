// Package supervisor wraps every external tool invocation with parameter
// validation, a per-tool timeout, a retry-once policy for idempotent tools,
// a per-dependency circuit breaker, and a declared fallback payload. It is
// the only component that talks to external collaborators.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trialvoice-core/engine/internal/agent/model"
	logx "github.com/trialvoice-core/engine/pkg/logger"
)

var (
	ErrUnknownTool           = errors.New("unknown tool")
	ErrInvalidParams         = errors.New("invalid tool parameters")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// errAbandoned marks an idempotent call whose caller gave up; the in-flight
	// attempt still settles the breaker in the background.
	errAbandoned = errors.New("tool call abandoned by caller")
)

// Supervisor runs tool invocations under the failure-handling discipline.
// Breaker state is keyed by dependency, not by tool, so two tools sharing a
// backend share its health.
type Supervisor struct {
	mu       sync.Mutex
	tools    map[string]*ToolSpec
	breakers map[string]*CircuitBreaker

	recmu   sync.Mutex
	records []model.ToolCallRecord

	onCost       func(usd float64)
	breakerCfg   model.BreakerConfig
	retryBackoff time.Duration
	now          func() time.Time
}

// New builds a supervisor over the given tool set. onCost, if non-nil, is
// called with the attributed cost of every successful invocation.
func New(cfg model.BreakerConfig, specs []*ToolSpec, onCost func(usd float64)) *Supervisor {
	s := &Supervisor{
		tools:        make(map[string]*ToolSpec, len(specs)),
		breakers:     make(map[string]*CircuitBreaker),
		onCost:       onCost,
		breakerCfg:   cfg,
		retryBackoff: 50 * time.Millisecond,
		now:          time.Now,
	}
	for _, spec := range specs {
		s.tools[spec.ID] = spec
	}
	return s
}

// Tool returns the registered spec for id, or nil.
func (s *Supervisor) Tool(id string) *ToolSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tools[id]
}

func (s *Supervisor) breakerFor(key string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = NewCircuitBreaker(s.breakerCfg.FailureThreshold, s.breakerCfg.Cooldown)
		s.breakers[key] = b
	}
	return b
}

// Records returns the audit trail in completion order.
func (s *Supervisor) Records() []model.ToolCallRecord {
	s.recmu.Lock()
	defer s.recmu.Unlock()
	return append([]model.ToolCallRecord(nil), s.records...)
}

func (s *Supervisor) record(rec model.ToolCallRecord) {
	s.recmu.Lock()
	s.records = append(s.records, rec)
	s.recmu.Unlock()
}

// Invoke runs one supervised tool call. Validation failures and unknown tools
// return Failure without touching the dependency or the breaker. A breaker
// that is Open inside its cooldown resolves to the fallback with zero
// external calls. Transport errors and timeouts feed the breaker, retry once
// for idempotent tools, and resolve to the fallback when one is declared.
func (s *Supervisor) Invoke(ctx context.Context, toolID string, params map[string]any) model.ToolResult {
	spec := s.Tool(toolID)
	if spec == nil {
		s.record(model.ToolCallRecord{
			Tool: toolID, Params: params, Timestamp: s.now(),
			Outcome: model.OutcomeError, Detail: "unknown tool",
		})
		return model.ToolResult{Status: model.ToolFailure, Reason: "unknown_tool", Err: ErrUnknownTool}
	}

	if err := spec.validate(params); err != nil {
		logx.Warn().Str("tool", toolID).Err(err).Msg("Tool parameter validation failed")
		s.record(model.ToolCallRecord{
			Tool: toolID, Params: params, Timestamp: s.now(),
			Outcome: model.OutcomeError, Detail: err.Error(),
		})
		return model.ToolResult{Status: model.ToolFailure, Reason: "invalid_params", Err: err}
	}

	breaker := s.breakerFor(spec.DependencyKey)
	if !breaker.Allow() {
		logx.Info().Str("tool", toolID).Str("dependency", spec.DependencyKey).
			Msg("Circuit open, serving fallback without external call")
		return s.resolveFallback(spec, params, "circuit_open", 0)
	}

	start := s.now()
	payload, err := s.attempt(ctx, spec, params)
	if err != nil && spec.Idempotent && ctx.Err() == nil {
		breaker.OnFailure()
		logx.Warn().Str("tool", toolID).Err(err).Msg("Tool call failed, retrying once")
		time.Sleep(s.retryBackoff)
		payload, err = s.attempt(ctx, spec, params)
	}
	latency := s.now().Sub(start)

	if err != nil {
		if !errors.Is(err, errAbandoned) {
			breaker.OnFailure()
		}
		return s.resolveFallback(spec, params, err.Error(), latency)
	}

	breaker.OnSuccess()
	s.record(model.ToolCallRecord{
		Tool: toolID, Params: params, Timestamp: s.now(),
		Outcome: model.OutcomeSuccess, Latency: latency, CostUSD: spec.CostUSD,
	})
	if s.onCost != nil && spec.CostUSD > 0 {
		s.onCost(spec.CostUSD)
	}
	return model.ToolResult{Status: model.ToolSuccess, Payload: payload}
}

// attempt runs a single bounded call. Non-idempotent tools are shielded from
// caller cancellation once dispatched and run to completion or their own
// timeout; an abandoned idempotent call still finishes in the background so
// its outcome reaches the breaker honestly.
func (s *Supervisor) attempt(ctx context.Context, spec *ToolSpec, params map[string]any) (map[string]any, error) {
	callCtx := ctx
	if !spec.Idempotent {
		callCtx = context.WithoutCancel(ctx)
	}
	callCtx, cancel := context.WithTimeout(callCtx, spec.Timeout)

	type outcome struct {
		payload map[string]any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer cancel()
		p, err := spec.Call(callCtx, params)
		done <- outcome{p, err}
	}()

	if spec.Idempotent {
		select {
		case out := <-done:
			return out.payload, out.err
		case <-ctx.Done():
			// Result discarded, but the in-flight call keeps running until
			// its own deadline so the breaker sees the true outcome.
			go func() {
				out := <-done
				if out.err != nil {
					s.breakerFor(spec.DependencyKey).OnFailure()
				} else {
					s.breakerFor(spec.DependencyKey).OnSuccess()
				}
			}()
			return nil, fmt.Errorf("%w: %v", errAbandoned, ctx.Err())
		}
	}
	out := <-done
	return out.payload, out.err
}

func (s *Supervisor) resolveFallback(spec *ToolSpec, params map[string]any, reason string, latency time.Duration) model.ToolResult {
	if spec.Fallback != nil {
		s.record(model.ToolCallRecord{
			Tool: spec.ID, Params: params, Timestamp: s.now(),
			Outcome: model.OutcomeFallback, Latency: latency, Detail: reason,
		})
		return model.ToolResult{Status: model.ToolFallback, Payload: spec.Fallback(params), Reason: reason}
	}
	s.record(model.ToolCallRecord{
		Tool: spec.ID, Params: params, Timestamp: s.now(),
		Outcome: model.OutcomeError, Latency: latency, Detail: reason,
	})
	return model.ToolResult{
		Status: model.ToolFailure, Reason: reason,
		Err: ErrDependencyUnavailable,
	}
}
