// Package qualify owns the session's accumulated qualification facts and the
// routing predicate derived from them. The store is the single writer of the
// QualificationRecord; everything else sees copies.
package qualify

import (
	"sort"
	"strings"
	"sync"

	"github.com/trialvoice-core/engine/internal/agent/model"
	logx "github.com/trialvoice-core/engine/pkg/logger"
)

// Store merges partial updates into the session's QualificationRecord and
// recomputes the routing tier after every mutation, so routing decisions
// never see a stale value.
type Store struct {
	mu  sync.Mutex
	rec model.QualificationRecord

	teamSizeMin            int
	monthlyVolumeMin       int
	complexIndustryTeamMin int
	crmSet                 map[string]struct{}
	complexIndustries      map[string]struct{}
}

// NewStore builds a store with the session's routing thresholds.
func NewStore(cfg model.RoutingConfig) *Store {
	return &Store{
		teamSizeMin:            cfg.TeamSizeMin,
		monthlyVolumeMin:       cfg.MonthlyVolumeMin,
		complexIndustryTeamMin: cfg.ComplexIndustryTeamMin,
		crmSet:                 cfg.CRMSet(),
		complexIndustries:      cfg.ComplexIndustrySet(),
	}
}

// Merge applies one partial update and returns a copy of the new record.
// Merge rules per field: numeric and free-text fields overwrite, integration
// needs union, pain points append with duplicate suppression, notes append.
// Merging the same update twice yields the same record as merging it once.
func (s *Store) Merge(upd model.SignalUpdate) model.QualificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if upd.TeamSize != nil {
		s.rec.TeamSize = *upd.TeamSize
	}
	if upd.MonthlyVolume != nil {
		s.rec.MonthlyVolume = *upd.MonthlyVolume
	}
	if len(upd.IntegrationNeeds) > 0 {
		s.rec.IntegrationNeeds = unionSorted(s.rec.IntegrationNeeds, upd.IntegrationNeeds)
	}
	if upd.Urgency != "" {
		s.rec.Urgency = upd.Urgency
	}
	if upd.Industry != "" {
		s.rec.Industry = upd.Industry
	}
	if upd.UseCase != "" {
		s.rec.UseCase = upd.UseCase
	}
	if upd.CurrentTool != "" {
		s.rec.CurrentTool = upd.CurrentTool
	}
	if upd.DecisionTimeline != "" {
		s.rec.DecisionTimeline = upd.DecisionTimeline
	}
	if upd.BudgetAuthority != "" {
		s.rec.BudgetAuthority = upd.BudgetAuthority
	}
	if upd.TeamStructure != "" {
		s.rec.TeamStructure = upd.TeamStructure
	}
	for _, p := range upd.PainPoints {
		s.rec.PainPoints = appendUnique(s.rec.PainPoints, p)
	}
	s.rec.Notes = append(s.rec.Notes, upd.Notes...)

	s.recomputeTierLocked()
	return s.copyLocked()
}

// Record returns a copy of the current record.
func (s *Store) Record() model.QualificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Tier returns the current routing tier.
func (s *Store) Tier() model.Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Tier
}

// SalesReady reports whether the session should route to sales.
func (s *Store) SalesReady() bool {
	return s.Tier() == model.TierSalesReady
}

// HasDiscoveryContext reports whether enough context has accumulated to leave
// the discovery phase: something about what they do (use case or a pain
// point) plus something about scale (team, volume, or an integration need).
func (s *Store) HasDiscoveryContext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	hasNeed := s.rec.UseCase != "" || len(s.rec.PainPoints) > 0
	hasScale := s.rec.TeamSize > 0 || s.rec.MonthlyVolume > 0 || len(s.rec.IntegrationNeeds) > 0
	return hasNeed && hasScale
}

// recomputeTierLocked re-evaluates the routing predicate. The tier only ever
// escalates within a session: once sales_ready, always sales_ready.
func (s *Store) recomputeTierLocked() {
	if s.rec.Tier == model.TierSalesReady {
		return
	}
	prev := s.rec.Tier
	if s.salesReadyLocked() {
		s.rec.Tier = model.TierSalesReady
	} else {
		s.rec.Tier = model.TierSelfServe
	}
	if s.rec.Tier != prev && s.rec.Tier == model.TierSalesReady {
		logx.Info().
			Int("team_size", s.rec.TeamSize).
			Int("monthly_volume", s.rec.MonthlyVolume).
			Strs("integration_needs", s.rec.IntegrationNeeds).
			Str("industry", s.rec.Industry).
			Msg("Qualification tier escalated to sales_ready")
	}
}

func (s *Store) salesReadyLocked() bool {
	if s.rec.TeamSize >= s.teamSizeMin {
		return true
	}
	if s.rec.MonthlyVolume >= s.monthlyVolumeMin {
		return true
	}
	for _, n := range s.rec.IntegrationNeeds {
		if _, ok := s.crmSet[strings.ToLower(n)]; ok {
			return true
		}
	}
	if s.rec.BudgetAuthority == model.AuthorityDecisionMaker && s.rec.Urgency == model.UrgencyHigh {
		return true
	}
	if _, ok := s.complexIndustries[strings.ToLower(s.rec.Industry)]; ok && s.rec.TeamSize >= s.complexIndustryTeamMin {
		return true
	}
	return false
}

func (s *Store) copyLocked() model.QualificationRecord {
	out := s.rec
	out.IntegrationNeeds = append([]string(nil), s.rec.IntegrationNeeds...)
	out.PainPoints = append([]string(nil), s.rec.PainPoints...)
	out.Notes = append([]string(nil), s.rec.Notes...)
	return out
}

func unionSorted(existing, add []string) []string {
	set := make(map[string]struct{}, len(existing)+len(add))
	for _, v := range existing {
		set[strings.ToLower(v)] = struct{}{}
	}
	for _, v := range add {
		set[strings.ToLower(v)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
