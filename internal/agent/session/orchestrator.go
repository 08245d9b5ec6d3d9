// Package session is the top-level orchestration loop for one live voice
// session. It routes finalized utterances through signal extraction, the
// qualification store, and the phase machine, forwards context to the
// conversation driver, and dispatches the driver's tool requests through the
// supervisor.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/trialvoice-core/engine/internal/agent/governor"
	"github.com/trialvoice-core/engine/internal/agent/model"
	"github.com/trialvoice-core/engine/internal/agent/phases"
	"github.com/trialvoice-core/engine/internal/agent/qualify"
	"github.com/trialvoice-core/engine/internal/agent/signals"
	"github.com/trialvoice-core/engine/internal/agent/supervisor"
	"github.com/trialvoice-core/engine/internal/agent/tools"
	logx "github.com/trialvoice-core/engine/pkg/logger"
)

// Archiver persists session artifacts. All calls are best effort from the
// session's perspective; persistence failures never affect the live call.
type Archiver interface {
	AppendTurn(ctx context.Context, sessionID string, message *schema.Message) error
	ArchiveExport(ctx context.Context, sessionID string, export any) error
}

// escalationPhrases route the caller straight to a human, bypassing the
// normal phase table.
var escalationPhrases = []string{
	"speak to a human",
	"talk to a human",
	"speak to a person",
	"talk to a person",
	"real person",
	"human agent",
	"speak to someone",
	"talk to your team directly",
	"get me a representative",
}

// frictionPhrases pull the conversation into the rescue phase.
var frictionPhrases = []string{
	"this is frustrating",
	"i'm frustrated",
	"this isn't working",
	"this is not working",
	"i'm stuck",
	"i am stuck",
	"this is confusing",
	"waste of my time",
	"not helpful",
}

// Config bundles everything an orchestrator needs at construction.
type Config struct {
	SessionID    string
	Limits       model.SessionLimitsConfig
	Routing      model.RoutingConfig
	Breaker      model.BreakerConfig
	Conversation model.ConversationConfig
}

// Orchestrator owns the per-session wiring. One instance per live call,
// discarded at session end.
type Orchestrator struct {
	id       string
	store    *qualify.Store
	machine  *phases.Machine
	sup      *supervisor.Supervisor
	gov      *governor.Governor
	driver   model.ConversationDriver
	pipeline model.VoicePipeline
	archive  Archiver

	maxToolsPerTurn int

	mu        sync.Mutex
	history   []*schema.Message
	consent   *bool
	toolSeq   int
	started   time.Time
	export    *SessionExport
	firstTurn bool

	done chan struct{}
}

// New wires a session. driver and pipeline are required; archive may be nil.
func New(cfg Config, drv model.ConversationDriver, pipeline model.VoicePipeline, specs []*supervisor.ToolSpec, archive Archiver) *Orchestrator {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	o := &Orchestrator{
		id:              cfg.SessionID,
		store:           qualify.NewStore(cfg.Routing),
		machine:         phases.NewMachine(),
		driver:          drv,
		pipeline:        pipeline,
		archive:         archive,
		maxToolsPerTurn: cfg.Conversation.MaxToolsPerTurn,
		started:         time.Now(),
		firstTurn:       true,
		done:            make(chan struct{}),
	}
	o.gov = governor.New(cfg.Limits, pipeline, o.finish)
	o.sup = supervisor.New(cfg.Breaker, specs, o.gov.AddCost)
	return o
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// Governor exposes the session governor for event wiring (speech activity
// callbacks from the audio pipeline).
func (o *Orchestrator) Governor() *governor.Governor { return o.gov }

// Phase returns the current conversation phase.
func (o *Orchestrator) Phase() phases.Phase { return o.machine.Current() }

// Qualification returns the latest committed qualification snapshot.
func (o *Orchestrator) Qualification() model.QualificationRecord { return o.store.Record() }

// Start launches the governor's periodic check. Call once, after New.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.gov.Run(ctx)
}

// Done closes when the session has ended and its export is assembled.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// OnUtterance processes one finalized caller utterance: extraction and merge
// first (pure, in order of arrival), then phase advancement, then the
// conversation driver. Utterances after session end are dropped.
func (o *Orchestrator) OnUtterance(ctx context.Context, text string) {
	if o.gov.Ended() {
		return
	}
	o.gov.SpeechActivity()

	lower := strings.ToLower(text)
	switch {
	case matchesAny(lower, escalationPhrases):
		if o.machine.Escalate() {
			logx.Info().Str("sessionID", o.id).Msg("Caller requested a human, escalating")
		}
	case matchesAny(lower, frictionPhrases):
		o.machine.Transition(phases.FrictionRescue)
	}

	o.gov.AddCost(model.EstimateTurnCost(speechSeconds(text), 0))

	if upd := signals.Extract(text); !upd.IsZero() {
		o.store.Merge(upd)
	}
	o.advancePhase()

	o.appendMessage(ctx, schema.UserMessage(text))
	o.runDriverTurn(ctx, text, true)
}

// OnToolRequest is the single entry point for external actions. Confirmed
// qualification signals flow back into the store; consent outcomes are
// tracked for the export.
func (o *Orchestrator) OnToolRequest(ctx context.Context, toolID string, params map[string]any) model.ToolResult {
	res := o.sup.Invoke(ctx, toolID, params)
	if res.Status != model.ToolSuccess {
		return res
	}

	if spec := o.sup.Tool(toolID); spec != nil && spec.ConfirmsSignal {
		if upd := tools.SignalUpdateFromPayload(res.Payload); !upd.IsZero() {
			o.store.Merge(upd)
			o.advancePhase()
		}
	}
	if toolID == tools.RecordConsent {
		if granted, ok := res.Payload["granted"].(bool); ok {
			o.mu.Lock()
			o.consent = &granted
			o.mu.Unlock()
		}
	}
	return res
}

// EndByUser records a caller hangup.
func (o *Orchestrator) EndByUser() {
	o.gov.End(model.DisconnectUserInitiated)
}

// advancePhase applies the predicate-driven forward transitions. Rejected
// transitions are tolerated; the conversation simply continues where it is.
func (o *Orchestrator) advancePhase() {
	switch o.machine.Current() {
	case phases.Greeting:
		o.mu.Lock()
		first := o.firstTurn
		o.firstTurn = false
		o.mu.Unlock()
		if first {
			o.machine.Transition(phases.Discovery)
		}
	case phases.Discovery:
		if o.store.HasDiscoveryContext() {
			o.machine.Transition(phases.Qualification)
		}
	case phases.Qualification:
		if o.store.SalesReady() {
			o.machine.Transition(phases.NextSteps)
		}
	}
}

// runDriverTurn asks the driver for the next move and carries out its speech
// and tool requests. Tool requests run concurrently within the per-turn
// bound; their results feed exactly one follow-up driver round.
func (o *Orchestrator) runDriverTurn(ctx context.Context, utterance string, allowTools bool) {
	decision, err := o.driver.Decide(ctx, o.driverContext(utterance))
	if err != nil {
		logx.Error().Str("sessionID", o.id).Err(err).Msg("Conversation driver failed for turn")
		o.speak(ctx, "Sorry, could you say that again?")
		return
	}
	o.gov.AddCost(decision.CostUSD)

	if decision.Speech != "" {
		o.appendMessage(ctx, schema.AssistantMessage(decision.Speech, nil))
		o.speak(ctx, decision.Speech)
	}
	if !allowTools || len(decision.ToolRequests) == 0 {
		return
	}

	requests := decision.ToolRequests
	if len(requests) > o.maxToolsPerTurn {
		logx.Warn().Str("sessionID", o.id).Int("requested", len(requests)).
			Int("limit", o.maxToolsPerTurn).Msg("Tool requests over per-turn bound, truncating")
		requests = requests[:o.maxToolsPerTurn]
	}

	results := make([]model.ToolResult, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req model.ToolRequest) {
			defer wg.Done()
			results[i] = o.OnToolRequest(ctx, req.ToolID, req.Params)
		}(i, req)
	}
	wg.Wait()

	for i, req := range requests {
		o.appendMessage(ctx, toolMessage(req.ToolID, o.nextToolSeq(), results[i]))
	}
	// One follow-up round so the driver can narrate tool outcomes. Further
	// tool requests wait for the next utterance.
	o.runDriverTurn(ctx, utterance, false)
}

func (o *Orchestrator) driverContext(utterance string) *model.DriverContext {
	o.mu.Lock()
	history := append([]*schema.Message(nil), o.history...)
	o.mu.Unlock()
	return &model.DriverContext{
		SessionID:     o.id,
		Utterance:     utterance,
		Phase:         string(o.machine.Current()),
		Qualification: o.store.Record(),
		History:       history,
	}
}

func (o *Orchestrator) appendMessage(ctx context.Context, msg *schema.Message) {
	o.mu.Lock()
	o.history = append(o.history, msg)
	o.mu.Unlock()
	if o.archive != nil {
		if err := o.archive.AppendTurn(ctx, o.id, msg); err != nil {
			logx.Warn().Str("sessionID", o.id).Err(err).Msg("Transcript persistence failed, continuing")
		}
	}
}

func (o *Orchestrator) speak(ctx context.Context, text string) {
	o.gov.AddCost(model.EstimateTurnCost(0, len(text)))
	if err := o.pipeline.Speak(ctx, text); err != nil {
		logx.Warn().Str("sessionID", o.id).Err(err).Msg("Speech delivery failed")
	}
}

// speechSeconds approximates how long the caller spoke from the transcript,
// assuming a conversational 150 words per minute.
func speechSeconds(text string) float64 {
	return float64(len(strings.Fields(text))) / 2.5
}

func (o *Orchestrator) nextToolSeq() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.toolSeq++
	return o.toolSeq
}

func toolMessage(toolID string, seq int, res model.ToolResult) *schema.Message {
	body := map[string]any{"status": string(res.Status)}
	if res.Payload != nil {
		body["payload"] = res.Payload
	}
	if res.Reason != "" {
		body["reason"] = res.Reason
	}
	content, err := json.Marshal(body)
	if err != nil {
		content = []byte(`{"status":"failure"}`)
	}
	return schema.ToolMessage(string(content), fmt.Sprintf("%s-%d", toolID, seq))
}

func matchesAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
