package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialvoice-core/engine/internal/agent/driver"
	"github.com/trialvoice-core/engine/internal/agent/model"
	"github.com/trialvoice-core/engine/internal/agent/phases"
	"github.com/trialvoice-core/engine/internal/agent/tools"
)

// silentPipeline records agent speech without any audio side.
type silentPipeline struct {
	mu    sync.Mutex
	lines []string
}

func (p *silentPipeline) Speak(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, text)
	return nil
}

func (p *silentPipeline) SpeakUninterruptible(ctx context.Context, text string) error {
	return p.Speak(ctx, text)
}

func (p *silentPipeline) spoken() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func testConfig() Config {
	return Config{
		SessionID: "test-session",
		Limits: model.SessionLimitsConfig{
			MaxDuration:    30 * time.Minute,
			MaxCostUSD:     5.0,
			SilenceTimeout: 30 * time.Second,
			SilenceGrace:   10 * time.Second,
			TickInterval:   time.Minute,
		},
		Routing: model.RoutingConfig{
			TeamSizeMin:            5,
			MonthlyVolumeMin:       100,
			ComplexIndustryTeamMin: 3,
			CRMIntegrations:        "salesforce,hubspot,crm,api,embedded",
			ComplexIndustries:      "healthcare,finance,legal",
		},
		Breaker:      model.BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute},
		Conversation: model.ConversationConfig{HistoryMaxTurns: 20, MaxToolsPerTurn: 3},
	}
}

func newTestOrchestrator(drv model.ConversationDriver) (*Orchestrator, *silentPipeline, tools.Backends) {
	backends := tools.Backends{
		Knowledge: tools.NewMemoryKnowledge(),
		Scheduler: tools.NewMemoryScheduler(),
		Mailer:    tools.NewMemoryMailer(),
		Events:    tools.NewMemoryEvents(),
	}
	pipeline := &silentPipeline{}
	o := New(testConfig(), drv, pipeline, tools.Registry(backends), nil)
	return o, pipeline, backends
}

// TestOnUtterance_QualifyingScenario walks the canonical flow: headcount then
// a Salesforce mention accumulate into a sales-ready record and the phase
// advances out of discovery.
func TestOnUtterance_QualifyingScenario(t *testing.T) {
	drv := driver.NewScriptedDriver()
	o, pipeline, _ := newTestOrchestrator(drv)
	ctx := context.Background()

	o.OnUtterance(ctx, "Getting proposals signed takes forever")
	assert.Equal(t, phases.Discovery, o.Phase(), "first utterance moves greeting to discovery")

	o.OnUtterance(ctx, "We have 8 sales reps")
	rec := o.Qualification()
	assert.Equal(t, 8, rec.TeamSize)
	assert.Equal(t, model.TierSalesReady, rec.Tier)
	assert.Equal(t, phases.Qualification, o.Phase(), "need plus scale leaves discovery")

	o.OnUtterance(ctx, "We need Salesforce sync")
	rec = o.Qualification()
	assert.Contains(t, rec.IntegrationNeeds, "salesforce")
	assert.Equal(t, phases.NextSteps, o.Phase(), "sales-ready record advances to next steps")

	assert.Len(t, pipeline.spoken(), 3, "one reply per utterance")
}

// TestOnUtterance_AudioCostAccrues verifies every spoken turn feeds an audio
// estimate into the governor's cost ceiling even when the driver reports zero
// token spend.
func TestOnUtterance_AudioCostAccrues(t *testing.T) {
	drv := driver.NewScriptedDriver(&model.DriverDecision{Speech: "Happy to help with that."})
	o, _, _ := newTestOrchestrator(drv)

	utterance := "Getting proposals signed takes forever"
	o.OnUtterance(context.Background(), utterance)

	want := model.EstimateTurnCost(speechSeconds(utterance), 0) +
		model.EstimateTurnCost(0, len("Happy to help with that."))
	assert.InDelta(t, want, o.Governor().Cost(), 1e-9)
	assert.Greater(t, o.Governor().Cost(), 0.0)
}

// TestOnUtterance_NoSignals verifies small talk leaves the record untouched.
func TestOnUtterance_NoSignals(t *testing.T) {
	o, _, _ := newTestOrchestrator(driver.NewScriptedDriver())
	ctx := context.Background()

	o.OnUtterance(ctx, "Hello there!")
	o.OnUtterance(ctx, "Okay, sounds good.")

	rec := o.Qualification()
	assert.Zero(t, rec.TeamSize)
	assert.Empty(t, rec.IntegrationNeeds)
	assert.Equal(t, phases.Discovery, o.Phase(), "no context means no exit from discovery")
}

// TestOnUtterance_Escalation verifies the human-request side channel bypasses
// the phase table.
func TestOnUtterance_Escalation(t *testing.T) {
	o, _, _ := newTestOrchestrator(driver.NewScriptedDriver())
	ctx := context.Background()

	o.OnUtterance(ctx, "Hi there")
	o.OnUtterance(ctx, "I want to speak to a human please")

	assert.Equal(t, phases.HumanEscalation, o.Phase())
}

func TestOnUtterance_FrictionRescue(t *testing.T) {
	o, _, _ := newTestOrchestrator(driver.NewScriptedDriver())
	ctx := context.Background()

	o.OnUtterance(ctx, "Hi there")
	o.OnUtterance(ctx, "Honestly this is frustrating")

	assert.Equal(t, phases.FrictionRescue, o.Phase())
}

// TestToolRound_DriverRequestsAreExecuted verifies tool requests run through
// the supervisor, feed confirmed signals back into the store, and trigger one
// follow-up driver round.
func TestToolRound_DriverRequestsAreExecuted(t *testing.T) {
	drv := driver.NewScriptedDriver(
		&model.DriverDecision{
			Speech: "Let me note that down.",
			ToolRequests: []model.ToolRequest{
				{ToolID: tools.LogQualification, Params: map[string]any{"team_size": 8}},
				{ToolID: tools.RecordConsent, Params: map[string]any{"granted": true}},
			},
		},
		&model.DriverDecision{Speech: "All set."},
	)
	o, pipeline, _ := newTestOrchestrator(drv)

	o.OnUtterance(context.Background(), "Sure, go ahead")

	rec := o.Qualification()
	assert.Equal(t, 8, rec.TeamSize, "confirmed signal merged into the store")
	assert.Equal(t, model.TierSalesReady, rec.Tier)
	assert.Equal(t, []string{"Let me note that down.", "All set."}, pipeline.spoken())
	require.Len(t, drv.Contexts(), 2, "exactly one follow-up round after tools")
}

// TestToolRound_PerTurnBound verifies requests beyond the per-turn limit are
// dropped.
func TestToolRound_PerTurnBound(t *testing.T) {
	overLimit := []model.ToolRequest{
		{ToolID: tools.LogEvent, Params: map[string]any{"event": "a"}},
		{ToolID: tools.LogEvent, Params: map[string]any{"event": "b"}},
		{ToolID: tools.LogEvent, Params: map[string]any{"event": "c"}},
		{ToolID: tools.LogEvent, Params: map[string]any{"event": "d"}},
	}
	drv := driver.NewScriptedDriver(
		&model.DriverDecision{Speech: "Logging.", ToolRequests: overLimit},
		&model.DriverDecision{Speech: "Done."},
	)
	o, _, backends := newTestOrchestrator(drv)

	o.OnUtterance(context.Background(), "Hello")

	events := backends.Events.(*tools.MemoryEvents).Events()
	assert.Len(t, events, 3, "fourth request dropped by the per-turn bound")
}

// TestOnToolRequest_ConsentTracked verifies consent outcomes land in the
// export.
func TestOnToolRequest_ConsentTracked(t *testing.T) {
	o, _, _ := newTestOrchestrator(driver.NewScriptedDriver())
	ctx := context.Background()

	res := o.OnToolRequest(ctx, tools.RecordConsent, map[string]any{"granted": true, "channel": "email"})
	require.Equal(t, model.ToolSuccess, res.Status)

	o.EndByUser()
	<-o.Done()

	export := o.Export()
	require.NotNil(t, export.Consent)
	assert.True(t, *export.Consent)
}

// TestExport_AssembledOnce verifies session end produces a complete export
// with the user-initiated reason and that later end causes cannot overwrite
// it.
func TestExport_AssembledOnce(t *testing.T) {
	drv := driver.NewScriptedDriver()
	o, _, _ := newTestOrchestrator(drv)
	ctx := context.Background()

	o.OnUtterance(ctx, "We have 8 sales reps and getting contracts signed takes forever")
	o.EndByUser()
	<-o.Done()

	export := o.Export()
	require.NotNil(t, export)
	assert.Equal(t, "test-session", export.SessionID)
	assert.Equal(t, model.DisconnectUserInitiated, export.DisconnectReason)
	assert.Equal(t, model.TierSalesReady, export.Qualification.Tier)
	assert.NotEmpty(t, export.PhaseHistory)
	assert.False(t, export.EndedAt.Before(export.StartedAt))

	o.Governor().End(model.DisconnectTimeLimit)
	assert.Equal(t, model.DisconnectUserInitiated, o.Export().DisconnectReason, "reason recorded exactly once")
}

// TestOnUtterance_AfterEndIsDropped verifies the loop ignores input once the
// session ended.
func TestOnUtterance_AfterEndIsDropped(t *testing.T) {
	o, pipeline, _ := newTestOrchestrator(driver.NewScriptedDriver())
	ctx := context.Background()

	o.EndByUser()
	<-o.Done()
	o.OnUtterance(ctx, "Anyone there?")

	assert.Empty(t, pipeline.spoken())
}

// TestDriverFailure_DegradesToReprompt verifies a driver error never kills
// the session.
func TestDriverFailure_DegradesToReprompt(t *testing.T) {
	o, pipeline, _ := newTestOrchestrator(failingDriver{})

	o.OnUtterance(context.Background(), "Hello")

	require.Len(t, pipeline.spoken(), 1)
	assert.Contains(t, pipeline.spoken()[0], "say that again")
	assert.False(t, o.Governor().Ended())
}

type failingDriver struct{}

func (failingDriver) Decide(context.Context, *model.DriverContext) (*model.DriverDecision, error) {
	return nil, assert.AnError
}
