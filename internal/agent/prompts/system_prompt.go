// Package prompts renders the conversation driver's system prompt from the
// current phase and qualification snapshot.
package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/trialvoice-core/engine/internal/agent/model"
	"github.com/trialvoice-core/engine/internal/agent/tools"
)

//go:embed template/system_prompt.txt
var systemPrompt string

// RenderSystem renders the per-turn system prompt via the Eino prompt
// component so formatting emits the usual callbacks.
func RenderSystem(ctx context.Context, cfg model.PromptConfig, phase string, rec model.QualificationRecord) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(systemPrompt),
	)
	vars := map[string]any{
		"BusinessType":         cfg.BusinessType,
		"BusinessName":         cfg.BusinessName,
		"Phase":                phase,
		"QualificationSummary": summarize(rec),
		"SearchTool":           tools.SearchKnowledge,
		"AvailabilityTool":     tools.CheckAvailability,
		"BookingTool":          tools.BookMeeting,
		"EmailTool":            tools.SendFollowupEmail,
		"QualifyTool":          tools.LogQualification,
		"ConsentTool":          tools.RecordConsent,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// summarize flattens the qualification record into prompt-friendly lines.
func summarize(rec model.QualificationRecord) string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	if rec.TeamSize > 0 {
		add("team size", fmt.Sprintf("%d", rec.TeamSize))
	}
	if rec.MonthlyVolume > 0 {
		add("documents per month", fmt.Sprintf("%d", rec.MonthlyVolume))
	}
	if len(rec.IntegrationNeeds) > 0 {
		add("integration needs", strings.Join(rec.IntegrationNeeds, ", "))
	}
	add("urgency", string(rec.Urgency))
	add("industry", rec.Industry)
	add("use case", rec.UseCase)
	add("current tool", rec.CurrentTool)
	add("decision timeline", rec.DecisionTimeline)
	add("budget authority", rec.BudgetAuthority)
	if len(rec.PainPoints) > 0 {
		add("pain points", strings.Join(rec.PainPoints, "; "))
	}
	if rec.Tier == model.TierSalesReady {
		lines = append(lines, "- this caller QUALIFIES for a sales meeting")
	}
	if len(lines) == 0 {
		return "Nothing yet. Stay in discovery mode and learn about them."
	}
	return strings.Join(lines, "\n")
}
