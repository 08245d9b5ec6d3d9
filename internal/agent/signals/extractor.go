// Package signals turns free-form caller speech into partial qualification
// updates. Extraction is pure pattern matching: precompiled regexps for
// numeric facts, keyword sets for everything else. No I/O, no state; merge
// semantics belong to the qualification store, not here.
package signals

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/trialvoice-core/engine/internal/agent/model"
)

var teamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d+)\s+(?:[a-z]+\s+)?(?:people|users|seats|employees|members|reps)\b`),
	regexp.MustCompile(`\bteam\s+of\s+(\d+)\b`),
	regexp.MustCompile(`\b(\d+)[\s-]person\s+team\b`),
}

// volumePattern captures a count plus the unit noun that scopes it; the unit
// group decides monthly normalization.
var volumePattern = regexp.MustCompile(
	`\b(\d+)\s*(?:documents?|docs?|contracts?|proposals?|quotes?|agreements?)\s*(?:per|a|every|each)?\s*(month|week|day)\b`)

var approxVolumePattern = regexp.MustCompile(`\b(?:send|create|process)\s+(?:about|around|roughly)\s+(\d+)\b`)

var integrationKeywords = []string{
	"salesforce", "hubspot", "zapier", "api", "crm", "embedded", "webhook",
}

var urgencyKeywords = []struct {
	level model.Urgency
	words []string
}{
	{model.UrgencyHigh, []string{"urgent", "asap", "immediately", "right away", "yesterday"}},
	{model.UrgencyMedium, []string{"soon", "this month", "next week"}},
	{model.UrgencyLow, []string{"eventually", "sometime", "down the road", "no rush"}},
}

var industryKeywords = []string{
	"healthcare", "legal", "real estate", "finance", "insurance", "construction", "hr",
}

type keywordMapping struct {
	keyword string
	value   string
}

var useCaseKeywords = []keywordMapping{
	{"proposals", "proposals"},
	{"proposal", "proposals"},
	{"contracts", "contracts"},
	{"contract", "contracts"},
	{"quotes", "quotes"},
	{"quote", "quotes"},
	{"ndas", "NDAs"},
	{"nda", "NDAs"},
	{"invoices", "invoices"},
	{"invoice", "invoices"},
}

var currentToolKeywords = []keywordMapping{
	{"docusign", "DocuSign"},
	{"adobe sign", "Adobe Sign"},
	{"hellosign", "HelloSign"},
	{"by hand", "manual"},
	{"manually", "manual"},
	{"word and email", "manual"},
}

var authorityKeywords = []struct {
	authority string
	phrases   []string
}{
	{model.AuthorityDecisionMaker, []string{"i'm the decision maker", "i am the decision maker", "my decision", "i decide", "i sign off", "my call"}},
	{model.AuthorityNeedsApproval, []string{"need approval", "run it by", "ask my boss", "get sign-off", "get signoff"}},
	{model.AuthorityInfluencer, []string{"i'll recommend", "i will recommend", "my recommendation"}},
}

var timelineKeywords = []string{
	"this week", "this month", "this quarter", "next quarter", "end of year", "evaluating",
}

var painPointKeywords = []string{
	"slow turnaround", "takes forever", "no tracking", "chasing signatures",
	"manual follow-up", "error-prone", "frustrating", "too many steps",
	"keeps getting lost",
}

// Extract scans one finalized utterance for qualification signals. It never
// fails: unmatched patterns simply contribute no fields. All keyword matching
// is case-insensitive; when an utterance mixes units, the first unambiguous
// match wins.
func Extract(utterance string) model.SignalUpdate {
	var upd model.SignalUpdate
	text := strings.ToLower(utterance)
	if strings.TrimSpace(text) == "" {
		return upd
	}

	for _, p := range teamPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				upd.TeamSize = &n
				break
			}
		}
	}

	if m := volumePattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			monthly := normalizeMonthly(n, m[2])
			upd.MonthlyVolume = &monthly
		}
	} else if m := approxVolumePattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			upd.MonthlyVolume = &n
		}
	}

	for _, kw := range integrationKeywords {
		if containsWord(text, kw) {
			upd.IntegrationNeeds = append(upd.IntegrationNeeds, kw)
		}
	}

	for _, group := range urgencyKeywords {
		if containsAny(text, group.words) {
			upd.Urgency = group.level
			break
		}
	}

	for _, industry := range industryKeywords {
		if containsWord(text, industry) {
			upd.Industry = industry
			break
		}
	}

	for _, m := range useCaseKeywords {
		if containsWord(text, m.keyword) {
			upd.UseCase = m.value
			break
		}
	}

	for _, m := range currentToolKeywords {
		if strings.Contains(text, m.keyword) {
			upd.CurrentTool = m.value
			break
		}
	}

	for _, group := range authorityKeywords {
		if containsAny(text, group.phrases) {
			upd.BudgetAuthority = group.authority
			break
		}
	}

	for _, phrase := range timelineKeywords {
		if strings.Contains(text, phrase) {
			upd.DecisionTimeline = phrase
			break
		}
	}

	for _, phrase := range painPointKeywords {
		if strings.Contains(text, phrase) {
			upd.PainPoints = append(upd.PainPoints, phrase)
		}
	}

	return upd
}

// normalizeMonthly converts a per-unit count to a monthly count. Weekly
// counts scale by 4.33 (weeks per month), daily by 30.
func normalizeMonthly(n int, unit string) int {
	switch unit {
	case "week":
		return int(math.Round(float64(n) * 4.33))
	case "day":
		return n * 30
	default:
		return n
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// containsWord matches kw on word boundaries so "api" doesn't fire inside
// "rapid".
func containsWord(text, kw string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		leftOK := start == 0 || !isWordChar(text[start-1])
		rightOK := end == len(text) || !isWordChar(text[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_'
}
