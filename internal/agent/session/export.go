package session

import (
	"context"
	"time"

	"github.com/trialvoice-core/engine/internal/agent/model"
	"github.com/trialvoice-core/engine/internal/agent/phases"
	logx "github.com/trialvoice-core/engine/pkg/logger"
)

// SessionExport is the payload handed to the analytics sink at session end:
// everything learned about the caller plus the full audit trail.
type SessionExport struct {
	SessionID     string                    `json:"session_id"`
	StartedAt     time.Time                 `json:"started_at"`
	EndedAt       time.Time                 `json:"ended_at"`
	Duration      time.Duration             `json:"duration_ns"`
	Qualification model.QualificationRecord `json:"qualification"`
	ToolCalls     []model.ToolCallRecord    `json:"tool_calls"`
	PhaseHistory  []phases.Transition       `json:"phase_history"`
	FinalPhase    phases.Phase              `json:"final_phase"`
	Consent       *bool                     `json:"consent,omitempty"`

	TotalCostUSD     float64                `json:"total_cost_usd"`
	DisconnectReason model.DisconnectReason `json:"disconnect_reason"`
}

// finish runs exactly once, from the governor's end callback. It assembles
// the export, hands it off best effort, and flags hot leads for follow-up.
func (o *Orchestrator) finish(reason model.DisconnectReason) {
	now := time.Now()

	o.mu.Lock()
	consent := o.consent
	started := o.started
	o.mu.Unlock()

	export := &SessionExport{
		SessionID:        o.id,
		StartedAt:        started,
		EndedAt:          now,
		Duration:         now.Sub(started),
		Qualification:    o.store.Record(),
		ToolCalls:        o.sup.Records(),
		PhaseHistory:     o.machine.History(),
		FinalPhase:       o.machine.Current(),
		Consent:          consent,
		TotalCostUSD:     o.gov.Cost(),
		DisconnectReason: reason,
	}

	o.mu.Lock()
	o.export = export
	o.mu.Unlock()

	if o.archive != nil {
		// Teardown has its own small deadline so a slow sink cannot hold the
		// session open.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.archive.ArchiveExport(ctx, o.id, export); err != nil {
			logx.Warn().Str("sessionID", o.id).Err(err).Msg("Session export handoff failed")
		}
	}

	if export.Qualification.Tier == model.TierSalesReady {
		logx.Info().
			Str("sessionID", o.id).
			Int("teamSize", export.Qualification.TeamSize).
			Int("monthlyVolume", export.Qualification.MonthlyVolume).
			Strs("integrations", export.Qualification.IntegrationNeeds).
			Msg("HOT LEAD: sales-ready session ended")
	}
	logx.Info().
		Str("sessionID", o.id).
		Str("reason", string(reason)).
		Str("finalPhase", string(export.FinalPhase)).
		Float64("costUSD", export.TotalCostUSD).
		Dur("duration", export.Duration).
		Int("toolCalls", len(export.ToolCalls)).
		Msg("Session export assembled")

	close(o.done)
}

// Export returns the assembled export, or nil before the session has ended.
func (o *Orchestrator) Export() *SessionExport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.export
}
