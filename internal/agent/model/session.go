package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// DisconnectReason records why a session ended. Written exactly once.
type DisconnectReason string

const (
	DisconnectSilenceTimeout DisconnectReason = "silence_timeout"
	DisconnectTimeLimit      DisconnectReason = "time_limit"
	DisconnectCostLimit      DisconnectReason = "cost_limit"
	DisconnectUserInitiated  DisconnectReason = "user_initiated"
)

// ToolOutcome is the recorded result class of one tool invocation.
type ToolOutcome string

const (
	OutcomeSuccess  ToolOutcome = "success"
	OutcomeFallback ToolOutcome = "fallback"
	OutcomeError    ToolOutcome = "error"
)

// ToolCallRecord is one immutable entry in the session's tool audit trail.
type ToolCallRecord struct {
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Outcome   ToolOutcome    `json:"outcome"`
	Latency   time.Duration  `json:"latency_ns"`
	CostUSD   float64        `json:"cost_usd,omitempty"`
	Detail    string         `json:"detail,omitempty"`
}

// ToolStatus is the three-way result class returned from Invoke.
type ToolStatus string

const (
	ToolSuccess  ToolStatus = "success"
	ToolFallback ToolStatus = "fallback"
	ToolFailure  ToolStatus = "failure"
)

// ToolResult is the outcome of a supervised tool invocation. Fallback carries
// a degraded-but-usable payload; Failure carries a typed error the
// conversation driver can interpret (never shown to the caller verbatim).
type ToolResult struct {
	Status  ToolStatus
	Payload map[string]any
	Reason  string
	Err     error
}

// VoicePipeline is the audio-side collaborator: the engine only ever asks it
// to speak. Transcript and speech-activity events flow the other way, into
// the orchestrator, via method calls from the pipeline's owner.
type VoicePipeline interface {
	Speak(ctx context.Context, text string) error
	// SpeakUninterruptible delivers a message the caller may not barge over,
	// used for session-ending notices.
	SpeakUninterruptible(ctx context.Context, text string) error
}

// ToolRequest is a structured external-action request from the driver.
type ToolRequest struct {
	ToolID string
	Params map[string]any
}

// DriverDecision is what the conversation driver produced for one turn:
// speech text, zero or more tool requests, and the estimated LLM cost of
// producing the decision.
type DriverDecision struct {
	Speech       string
	ToolRequests []ToolRequest
	CostUSD      float64
}

// DriverContext is the snapshot handed to the conversation driver each turn.
type DriverContext struct {
	SessionID     string
	Utterance     string
	Phase         string
	Qualification QualificationRecord
	History       []*schema.Message
}

// ConversationDriver turns conversation context into the next utterance or
// tool request. The engine supplies context and interprets the decision; how
// the decision is made is not its concern.
type ConversationDriver interface {
	Decide(ctx context.Context, dc *DriverContext) (*DriverDecision, error)
}
