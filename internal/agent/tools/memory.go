package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryKnowledge is a small in-process knowledge index used by the demo
// binary and tests.
type MemoryKnowledge struct {
	articles []Article
}

// NewMemoryKnowledge seeds the index with product help content.
func NewMemoryKnowledge() *MemoryKnowledge {
	return &MemoryKnowledge{articles: []Article{
		{Title: "Getting started with templates", Snippet: "Create a reusable template from any document under Templates, then new documents inherit its fields and branding."},
		{Title: "Salesforce integration setup", Snippet: "Connect Salesforce from Settings > Integrations; opportunities sync both ways and documents attach to records automatically."},
		{Title: "HubSpot integration setup", Snippet: "The HubSpot integration embeds document creation inside deals and logs sends and views to the deal timeline."},
		{Title: "E-signature workflow", Snippet: "Add signers in order, set signing fields, and every signature is captured with a full audit trail."},
		{Title: "Pricing plans", Snippet: "The Essentials plan covers small teams; Business adds CRM integrations and bulk send; Enterprise adds SSO and custom workflows."},
		{Title: "Approval workflows", Snippet: "Route documents through internal approvers before they reach the recipient, with per-step notifications."},
	}}
}

func (m *MemoryKnowledge) Search(_ context.Context, query, _ string) ([]Article, error) {
	q := strings.ToLower(query)
	var hits []Article
	for _, a := range m.articles {
		if strings.Contains(strings.ToLower(a.Title), q) || strings.Contains(strings.ToLower(a.Snippet), q) {
			hits = append(hits, a)
			continue
		}
		for _, word := range strings.Fields(q) {
			if len(word) > 3 && strings.Contains(strings.ToLower(a.Title+" "+a.Snippet), word) {
				hits = append(hits, a)
				break
			}
		}
	}
	return hits, nil
}

// MemoryScheduler hands out canned slots and records bookings in memory.
type MemoryScheduler struct {
	mu       sync.Mutex
	bookings []BookingRequest
}

func NewMemoryScheduler() *MemoryScheduler { return &MemoryScheduler{} }

func (m *MemoryScheduler) Availability(_ context.Context, _ string) ([]string, error) {
	day := nextBusinessDay(time.Now())
	return []string{
		day.Format("Monday Jan 2") + " 10:00",
		day.Format("Monday Jan 2") + " 14:00",
		day.AddDate(0, 0, 1).Format("Monday Jan 2") + " 11:00",
	}, nil
}

func (m *MemoryScheduler) Book(_ context.Context, req BookingRequest) (Booking, error) {
	m.mu.Lock()
	m.bookings = append(m.bookings, req)
	n := len(m.bookings)
	m.mu.Unlock()

	when := req.PreferredDate
	if when == "" {
		when = nextBusinessDay(time.Now()).Format("Monday Jan 2")
	}
	at := req.PreferredTime
	if at == "" {
		at = "10:00"
	}
	return Booking{
		MeetingTime: when + " " + at,
		MeetingLink: fmt.Sprintf("https://meet.example.com/sales-%04d", n),
	}, nil
}

// Bookings returns the bookings recorded so far.
func (m *MemoryScheduler) Bookings() []BookingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BookingRequest(nil), m.bookings...)
}

func nextBusinessDay(from time.Time) time.Time {
	d := from.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// MemoryMailer collects outbound mail instead of sending it.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []SentMail
}

// SentMail is one captured outbound message.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

func NewMemoryMailer() *MemoryMailer { return &MemoryMailer{} }

func (m *MemoryMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}

// Sent returns the captured messages.
func (m *MemoryMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// MemoryEvents accumulates analytics events in memory.
type MemoryEvents struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// RecordedEvent is one captured analytics emission.
type RecordedEvent struct {
	Event string
	Props map[string]any
}

func NewMemoryEvents() *MemoryEvents { return &MemoryEvents{} }

func (m *MemoryEvents) Emit(_ context.Context, event string, props map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, RecordedEvent{Event: event, Props: props})
	return nil
}

// Events returns the captured events.
func (m *MemoryEvents) Events() []RecordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedEvent(nil), m.events...)
}
