package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialvoice-core/engine/internal/agent/model"
)

// TestExtract_TeamSize covers the phrasings callers actually use for
// headcount.
func TestExtract_TeamSize(t *testing.T) {
	cases := []struct {
		utterance string
		want      int
	}{
		{"We have 8 sales reps", 8},
		{"There are 25 people on the team", 25},
		{"We're a team of 12", 12},
		{"It's a 4-person team", 4},
		{"About 150 employees use it", 150},
	}
	for _, tc := range cases {
		upd := Extract(tc.utterance)
		require.NotNil(t, upd.TeamSize, "utterance %q should yield a team size", tc.utterance)
		assert.Equal(t, tc.want, *upd.TeamSize, "utterance %q", tc.utterance)
	}
}

// TestExtract_VolumeNormalization verifies weekly and daily counts scale to
// monthly.
func TestExtract_VolumeNormalization(t *testing.T) {
	cases := []struct {
		utterance string
		want      int
	}{
		{"We send 200 contracts per month", 200},
		{"Around 40 proposals a week", 173}, // 40 * 4.33 rounded
		{"We process 10 docs a day", 300},
	}
	for _, tc := range cases {
		upd := Extract(tc.utterance)
		require.NotNil(t, upd.MonthlyVolume, "utterance %q should yield a volume", tc.utterance)
		assert.Equal(t, tc.want, *upd.MonthlyVolume, "utterance %q", tc.utterance)
	}
}

func TestExtract_Integrations(t *testing.T) {
	upd := Extract("We need Salesforce sync and API access")
	assert.ElementsMatch(t, []string{"salesforce", "api"}, upd.IntegrationNeeds)
}

// TestExtract_WordBoundaries guards against keywords firing inside longer
// words.
func TestExtract_WordBoundaries(t *testing.T) {
	assert.Empty(t, Extract("That was a rapid reply").IntegrationNeeds, "api must not match inside rapid")
	assert.Empty(t, Extract("We looked at three options").Industry, "hr must not match inside three")
	assert.Empty(t, Extract("Send it to my calendar").UseCase, "nda must not match inside calendar")
}

func TestExtract_Urgency(t *testing.T) {
	assert.Equal(t, model.UrgencyHigh, Extract("We need this asap").Urgency)
	assert.Equal(t, model.UrgencyMedium, Extract("We want to roll out soon").Urgency)
	assert.Equal(t, model.UrgencyLow, Extract("Maybe eventually, no rush").Urgency)
	assert.Equal(t, model.Urgency(""), Extract("Tell me about templates").Urgency)
}

func TestExtract_IndustryAndUseCase(t *testing.T) {
	upd := Extract("We're a healthcare company sending proposals")
	assert.Equal(t, "healthcare", upd.Industry)
	assert.Equal(t, "proposals", upd.UseCase)
}

func TestExtract_CurrentTool(t *testing.T) {
	assert.Equal(t, "DocuSign", Extract("We've been using DocuSign").CurrentTool)
	assert.Equal(t, "manual", Extract("We do everything manually").CurrentTool)
}

func TestExtract_Authority(t *testing.T) {
	assert.Equal(t, model.AuthorityDecisionMaker, Extract("It's my call at the end of the day").BudgetAuthority)
	assert.Equal(t, model.AuthorityNeedsApproval, Extract("I'd have to run it by finance").BudgetAuthority)
}

func TestExtract_PainPoints(t *testing.T) {
	upd := Extract("Getting contracts signed takes forever and we're always chasing signatures")
	assert.Contains(t, upd.PainPoints, "takes forever")
	assert.Contains(t, upd.PainPoints, "chasing signatures")
}

// TestExtract_NoSignals verifies that an utterance with nothing extractable
// yields a zero update.
func TestExtract_NoSignals(t *testing.T) {
	assert.True(t, Extract("Okay, sounds good, thank you!").IsZero())
	assert.True(t, Extract("").IsZero())
	assert.True(t, Extract("   ").IsZero())
}

// TestExtract_Deterministic re-runs extraction on a keyword-dense utterance
// and expects identical output every time.
func TestExtract_Deterministic(t *testing.T) {
	utterance := "Our legal team of 6 sends 30 contracts per month through DocuSign and needs CRM and API hooks asap"
	first := Extract(utterance)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Extract(utterance))
	}
}
