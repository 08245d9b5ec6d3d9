package model

// Urgency is the strength of the caller's stated timeline pressure.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Tier is the derived routing category for a session.
type Tier string

const (
	TierSelfServe  Tier = "self_serve"
	TierSalesReady Tier = "sales_ready"
)

// BudgetAuthority values recognized by the routing predicate.
const (
	AuthorityDecisionMaker = "decision_maker"
	AuthorityNeedsApproval = "needs_approval"
	AuthorityInfluencer    = "influencer"
)

// QualificationRecord accumulates everything learned about the caller over
// one session. Zero values mean "not yet discovered" for scalar fields.
type QualificationRecord struct {
	TeamSize         int      `json:"team_size,omitempty"`
	MonthlyVolume    int      `json:"monthly_volume,omitempty"`
	IntegrationNeeds []string `json:"integration_needs,omitempty"`
	Urgency          Urgency  `json:"urgency,omitempty"`

	Industry         string `json:"industry,omitempty"`
	UseCase          string `json:"use_case,omitempty"`
	CurrentTool      string `json:"current_tool,omitempty"`
	DecisionTimeline string `json:"decision_timeline,omitempty"`
	BudgetAuthority  string `json:"budget_authority,omitempty"`
	TeamStructure    string `json:"team_structure,omitempty"`

	PainPoints []string `json:"pain_points,omitempty"`
	Notes      []string `json:"notes,omitempty"`

	// Tier is recomputed on every merge and never downgraded within a session.
	Tier Tier `json:"qualification_tier,omitempty"`
}

// HasIntegration reports whether the given integration has been mentioned.
func (r *QualificationRecord) HasIntegration(name string) bool {
	for _, n := range r.IntegrationNeeds {
		if n == name {
			return true
		}
	}
	return false
}

// SignalUpdate is a partial update to the QualificationRecord produced by the
// signal extractor or by an explicit signal-confirmation tool call. Nil
// pointers and empty strings mean "no new information for this field".
type SignalUpdate struct {
	TeamSize         *int
	MonthlyVolume    *int
	IntegrationNeeds []string
	Urgency          Urgency

	Industry         string
	UseCase          string
	CurrentTool      string
	DecisionTimeline string
	BudgetAuthority  string
	TeamStructure    string

	PainPoints []string
	Notes      []string
}

// IsZero reports whether the update carries no information at all.
func (u SignalUpdate) IsZero() bool {
	return u.TeamSize == nil &&
		u.MonthlyVolume == nil &&
		len(u.IntegrationNeeds) == 0 &&
		u.Urgency == "" &&
		u.Industry == "" &&
		u.UseCase == "" &&
		u.CurrentTool == "" &&
		u.DecisionTimeline == "" &&
		u.BudgetAuthority == "" &&
		u.TeamStructure == "" &&
		len(u.PainPoints) == 0 &&
		len(u.Notes) == 0
}
