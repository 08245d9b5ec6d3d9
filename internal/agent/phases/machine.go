// Package phases is the explicit conversation-arc state machine. Transitions
// are table-gated; an illegal request is rejected and logged, never fatal.
package phases

import (
	"sync"
	"time"

	logx "github.com/trialvoice-core/engine/pkg/logger"
)

// Phase is one stage of the conversation arc.
type Phase string

const (
	Greeting           Phase = "greeting"
	Discovery          Phase = "discovery"
	ValueDemonstration Phase = "value_demonstration"
	Qualification      Phase = "qualification"
	NextSteps          Phase = "next_steps"
	Closing            Phase = "closing"
	FrictionRescue     Phase = "friction_rescue"
	HumanEscalation    Phase = "human_escalation"
)

// allowed is the only source of legal table transitions. HumanEscalation is
// reachable from any non-terminal phase via Escalate, bypassing the table.
var allowed = map[Phase][]Phase{
	Greeting:           {Discovery, FrictionRescue},
	Discovery:          {ValueDemonstration, Qualification, FrictionRescue},
	ValueDemonstration: {Qualification, NextSteps, FrictionRescue},
	Qualification:      {NextSteps, ValueDemonstration},
	NextSteps:          {Closing, Qualification},
	FrictionRescue:     {Discovery, ValueDemonstration, Closing},
	Closing:            {},
	HumanEscalation:    {},
}

// Transition records one accepted phase change.
type Transition struct {
	From Phase     `json:"from"`
	To   Phase     `json:"to"`
	At   time.Time `json:"at"`
}

// Machine holds the single active phase for one session.
type Machine struct {
	mu      sync.Mutex
	current Phase
	history []Transition
	now     func() time.Time
}

// NewMachine starts a session in Greeting.
func NewMachine() *Machine {
	return &Machine{current: Greeting, now: time.Now}
}

// Current returns the active phase.
func (m *Machine) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Terminal reports whether no further transitions are accepted.
func (m *Machine) Terminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminalLocked()
}

func (m *Machine) terminalLocked() bool {
	return m.current == Closing || m.current == HumanEscalation
}

// Transition attempts a table-gated transition. An illegal target is rejected
// with the current phase unchanged; callers carry on in the current phase.
func (m *Machine) Transition(to Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, legal := range allowed[m.current] {
		if legal == to {
			m.applyLocked(to)
			return true
		}
	}
	logx.Warn().
		Str("from", string(m.current)).
		Str("to", string(to)).
		Msg("Rejected illegal phase transition")
	return false
}

// Escalate moves to HumanEscalation from any non-terminal phase. This is the
// one sanctioned bypass of the transition table.
func (m *Machine) Escalate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.terminalLocked() {
		return false
	}
	m.applyLocked(HumanEscalation)
	return true
}

func (m *Machine) applyLocked(to Phase) {
	logx.Info().
		Str("from", string(m.current)).
		Str("to", string(to)).
		Msg("Phase transition")
	m.history = append(m.history, Transition{From: m.current, To: to, At: m.now()})
	m.current = to
}

// History returns the ordered accepted transitions.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.history...)
}
