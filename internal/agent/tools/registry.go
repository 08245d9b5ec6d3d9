// Package tools declares the external actions the conversation driver may
// request, each with its parameter schema, latency budget, idempotence, and
// fallback. Backends are interfaces so the demo binary and tests can run on
// in-memory implementations.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/trialvoice-core/engine/internal/agent/model"
	"github.com/trialvoice-core/engine/internal/agent/supervisor"
)

// Tool identifiers, as the conversation driver requests them.
const (
	SearchKnowledge   = "search_knowledge"
	CheckAvailability = "check_availability"
	BookMeeting       = "book_meeting"
	SendFollowupEmail = "send_followup_email"
	LogEvent          = "log_event"
	LogQualification  = "log_qualification_signal"
	RecordConsent     = "record_consent"
)

// Article is one knowledge base hit.
type Article struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// BookingRequest carries everything the scheduler needs to create a meeting.
type BookingRequest struct {
	CustomerName  string
	CustomerEmail string
	PreferredDate string
	PreferredTime string
}

// Booking is a confirmed meeting.
type Booking struct {
	MeetingTime string `json:"meeting_time"`
	MeetingLink string `json:"meeting_link"`
}

// KnowledgeIndex answers product questions from indexed content.
type KnowledgeIndex interface {
	Search(ctx context.Context, query, category string) ([]Article, error)
}

// Scheduler exposes calendar availability and booking.
type Scheduler interface {
	Availability(ctx context.Context, datePref string) ([]string, error)
	Book(ctx context.Context, req BookingRequest) (Booking, error)
}

// Mailer dispatches follow-up email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EventSink receives analytics events. Emission failures never surface to the
// caller; the tool always resolves via its fallback.
type EventSink interface {
	Emit(ctx context.Context, event string, props map[string]any) error
}

// Backends bundles the external collaborators behind the tool set.
type Backends struct {
	Knowledge KnowledgeIndex
	Scheduler Scheduler
	Mailer    Mailer
	Events    EventSink
}

// Registry builds the supervised tool specs over the given backends.
func Registry(b Backends) []*supervisor.ToolSpec {
	return []*supervisor.ToolSpec{
		searchKnowledgeSpec(b.Knowledge),
		checkAvailabilitySpec(b.Scheduler),
		bookMeetingSpec(b.Scheduler),
		sendFollowupEmailSpec(b.Mailer),
		logEventSpec(b.Events),
		logQualificationSpec(),
		recordConsentSpec(),
	}
}

func searchKnowledgeSpec(idx KnowledgeIndex) *supervisor.ToolSpec {
	return &supervisor.ToolSpec{
		ID:            SearchKnowledge,
		Description:   "Search the product knowledge base for an answer to the caller's question.",
		DependencyKey: "knowledge",
		Timeout:       500 * time.Millisecond,
		Idempotent:    true,
		CostUSD:       0.002,
		Params: map[string]*schema.ParameterInfo{
			"query":    {Type: schema.String, Desc: "The caller's question, rephrased as a search query", Required: true},
			"category": {Type: schema.String, Desc: "Optional content category filter"},
		},
		Call: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			query, _ := params["query"].(string)
			category, _ := params["category"].(string)
			articles, err := idx.Search(ctx, query, category)
			if err != nil {
				return nil, err
			}
			if len(articles) == 0 {
				return map[string]any{
					"found":       false,
					"answer":      nil,
					"next_action": "provide_direct_guidance",
				}, nil
			}
			top := articles[0]
			return map[string]any{
				"found":         true,
				"answer":        top.Snippet,
				"title":         top.Title,
				"total_results": len(articles),
				"next_action":   nextAction(query, true),
			}, nil
		},
		Fallback: func(params map[string]any) map[string]any {
			query, _ := params["query"].(string)
			return map[string]any{
				"found":       false,
				"answer":      nil,
				"next_action": nextAction(query, false),
				"note":        "knowledge base unavailable, answer from general product knowledge",
			}
		},
	}
}

func checkAvailabilitySpec(sched Scheduler) *supervisor.ToolSpec {
	return &supervisor.ToolSpec{
		ID:            CheckAvailability,
		Description:   "Look up open meeting slots before offering a booking.",
		DependencyKey: "calendar",
		Timeout:       200 * time.Millisecond,
		Idempotent:    true,
		Params: map[string]*schema.ParameterInfo{
			"preferred_date": {Type: schema.String, Desc: "Date preference such as 'tomorrow' or 'next Tuesday'"},
		},
		Call: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			pref, _ := params["preferred_date"].(string)
			slots, err := sched.Availability(ctx, pref)
			if err != nil {
				return nil, err
			}
			return map[string]any{"slots": slots}, nil
		},
		Fallback: func(map[string]any) map[string]any {
			return map[string]any{
				"slots": []string{},
				"note":  "calendar unavailable, offer to send a scheduling link by email",
			}
		},
	}
}

func bookMeetingSpec(sched Scheduler) *supervisor.ToolSpec {
	return &supervisor.ToolSpec{
		ID:            BookMeeting,
		Description:   "Book a sales meeting for a qualified caller. Never retried automatically.",
		DependencyKey: "calendar",
		Timeout:       2 * time.Second,
		Idempotent:    false,
		Params: map[string]*schema.ParameterInfo{
			"customer_name":  {Type: schema.String, Desc: "Full name of the caller", Required: true},
			"customer_email": {Type: schema.String, Desc: "Email for the calendar invite", Required: true},
			"preferred_date": {Type: schema.String, Desc: "Date preference"},
			"preferred_time": {Type: schema.String, Desc: "Time preference"},
		},
		Call: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			req := BookingRequest{
				CustomerName:  stringParam(params, "customer_name"),
				CustomerEmail: stringParam(params, "customer_email"),
				PreferredDate: stringParam(params, "preferred_date"),
				PreferredTime: stringParam(params, "preferred_time"),
			}
			booking, err := sched.Book(ctx, req)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"booking_status": "confirmed",
				"meeting_time":   booking.MeetingTime,
				"meeting_link":   booking.MeetingLink,
			}, nil
		},
		Fallback: func(params map[string]any) map[string]any {
			return map[string]any{
				"booking_status": "pending",
				"note":           fmt.Sprintf("could not confirm the slot now, a scheduling link will be emailed to %s", stringParam(params, "customer_email")),
			}
		},
	}
}

func sendFollowupEmailSpec(mailer Mailer) *supervisor.ToolSpec {
	return &supervisor.ToolSpec{
		ID:            SendFollowupEmail,
		Description:   "Send the caller a follow-up email with resources discussed on the call.",
		DependencyKey: "email",
		Timeout:       3 * time.Second,
		Idempotent:    false,
		Params: map[string]*schema.ParameterInfo{
			"to":      {Type: schema.String, Desc: "Recipient email address", Required: true},
			"subject": {Type: schema.String, Desc: "Email subject", Required: true},
			"body":    {Type: schema.String, Desc: "Email body", Required: true},
		},
		Call: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			err := mailer.Send(ctx, stringParam(params, "to"), stringParam(params, "subject"), stringParam(params, "body"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"sent": true}, nil
		},
		Fallback: func(map[string]any) map[string]any {
			return map[string]any{
				"sent": false,
				"note": "email could not be dispatched, follow-up will be queued after the call",
			}
		},
	}
}

func logEventSpec(sink EventSink) *supervisor.ToolSpec {
	return &supervisor.ToolSpec{
		ID:            LogEvent,
		Description:   "Record an analytics event. Fire-and-forget, never blocks the conversation.",
		DependencyKey: "analytics",
		Timeout:       250 * time.Millisecond,
		Idempotent:    true,
		Params: map[string]*schema.ParameterInfo{
			"event":      {Type: schema.String, Desc: "Event name", Required: true},
			"properties": {Type: schema.Object, Desc: "Event properties"},
		},
		Call: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			props, _ := params["properties"].(map[string]any)
			if err := sink.Emit(ctx, stringParam(params, "event"), props); err != nil {
				return nil, err
			}
			return map[string]any{"logged": true}, nil
		},
		Fallback: func(map[string]any) map[string]any {
			return map[string]any{"logged": false}
		},
	}
}

func logQualificationSpec() *supervisor.ToolSpec {
	return &supervisor.ToolSpec{
		ID:            LogQualification,
		Description:   "Record a qualification detail the caller explicitly confirmed.",
		DependencyKey: "local",
		Timeout:       50 * time.Millisecond,
		Idempotent:    true,
		Params: map[string]*schema.ParameterInfo{
			"team_size":        {Type: schema.Integer, Desc: "Confirmed team size"},
			"monthly_volume":   {Type: schema.Integer, Desc: "Confirmed documents per month"},
			"integration":      {Type: schema.String, Desc: "Confirmed integration need, e.g. salesforce"},
			"urgency":          {Type: schema.String, Desc: "Confirmed urgency: low, medium, or high"},
			"industry":         {Type: schema.String, Desc: "Confirmed industry"},
			"budget_authority": {Type: schema.String, Desc: "decision_maker, needs_approval, or influencer"},
			"use_case":         {Type: schema.String, Desc: "Confirmed primary use case"},
			"current_tool":     {Type: schema.String, Desc: "Tool they use today"},
			"note":             {Type: schema.String, Desc: "Free-form note worth keeping with the record"},
		},
		ConfirmsSignal: true,
		Call: func(_ context.Context, params map[string]any) (map[string]any, error) {
			out := make(map[string]any, len(params))
			for k, v := range params {
				out[k] = v
			}
			return out, nil
		},
	}
}

func recordConsentSpec() *supervisor.ToolSpec {
	return &supervisor.ToolSpec{
		ID:            RecordConsent,
		Description:   "Record whether the caller consented to follow-up contact.",
		DependencyKey: "local",
		Timeout:       50 * time.Millisecond,
		Idempotent:    true,
		Params: map[string]*schema.ParameterInfo{
			"granted": {Type: schema.Boolean, Desc: "Whether consent was granted", Required: true},
			"channel": {Type: schema.String, Desc: "Contact channel the consent covers, e.g. email"},
		},
		Call: func(_ context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{
				"granted": params["granted"],
				"channel": stringParam(params, "channel"),
			}, nil
		},
	}
}

// SignalUpdateFromPayload lifts a confirmed-signal tool payload into a partial
// qualification update for the merge path.
func SignalUpdateFromPayload(payload map[string]any) model.SignalUpdate {
	var upd model.SignalUpdate
	if n, ok := intFromPayload(payload["team_size"]); ok {
		upd.TeamSize = &n
	}
	if n, ok := intFromPayload(payload["monthly_volume"]); ok {
		upd.MonthlyVolume = &n
	}
	if s := stringParam(payload, "integration"); s != "" {
		upd.IntegrationNeeds = []string{strings.ToLower(s)}
	}
	if s := stringParam(payload, "urgency"); s != "" {
		upd.Urgency = model.Urgency(strings.ToLower(s))
	}
	upd.Industry = strings.ToLower(stringParam(payload, "industry"))
	upd.BudgetAuthority = strings.ToLower(stringParam(payload, "budget_authority"))
	upd.UseCase = strings.ToLower(stringParam(payload, "use_case"))
	upd.CurrentTool = strings.ToLower(stringParam(payload, "current_tool"))
	if s := stringParam(payload, "note"); s != "" {
		upd.Notes = []string{s}
	}
	return upd
}

func intFromPayload(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// nextAction suggests the conversationally useful follow-up for a knowledge
// query, biased toward giving direct help rather than asking questions.
func nextAction(query string, found bool) string {
	if !found {
		return "provide_direct_guidance"
	}
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "how", "setup", "configure", "create"):
		return "provide_step_by_step_guide"
	case containsAny(q, "pricing", "cost", "plan", "tier"):
		return "explain_pricing_tiers"
	case containsAny(q, "integration", "connect", "sync", "api"):
		return "explain_integration_steps"
	case containsAny(q, "error", "problem", "issue", "broken"):
		return "provide_troubleshooting_steps"
	}
	return "provide_relevant_information"
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
