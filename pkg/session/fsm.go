package session

import (
	"sync"
	"time"
)

// Phase is one step of the turn-taking cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAsking
	PhaseAwaitPlayback
	PhaseListening
	PhaseAnalyzing
	PhaseClosing
	PhaseDone
)

// String returns the string representation of a Phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseAsking:
		return "ASKING"
	case PhaseAwaitPlayback:
		return "AWAIT_PLAYBACK"
	case PhaseListening:
		return "LISTENING"
	case PhaseAnalyzing:
		return "ANALYZING"
	case PhaseClosing:
		return "CLOSING"
	case PhaseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// PhaseChange represents a phase transition event.
type PhaseChange struct {
	FromPhase Phase
	ToPhase   Phase
	Timestamp time.Time
	Reason    string
}

// PhaseListener observes session phase changes.
type PhaseListener interface {
	OnPhaseChange(event PhaseChange)
}

// phaseMachine implements the finite state machine for the conversation loop.
type phaseMachine struct {
	current Phase
	mu      sync.RWMutex

	listeners []PhaseListener
}

func newPhaseMachine() *phaseMachine {
	return &phaseMachine{current: PhaseIdle}
}

// Phase returns the current phase.
func (m *phaseMachine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// transitionValid checks if a phase transition is valid (must be called with lock held).
func (m *phaseMachine) transitionValid(from, to Phase) bool {
	validTransitions := map[Phase][]Phase{
		PhaseIdle:          {PhaseAsking, PhaseClosing},
		PhaseAsking:        {PhaseAwaitPlayback, PhaseClosing},
		PhaseAwaitPlayback: {PhaseListening, PhaseClosing},
		PhaseListening:     {PhaseAnalyzing, PhaseAsking, PhaseClosing},
		PhaseAnalyzing:     {PhaseAsking, PhaseClosing},
		PhaseClosing:       {PhaseDone},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

// Transition moves to a new phase with validation.
func (m *phaseMachine) Transition(phase Phase, reason string) error {
	m.mu.Lock()

	if !m.transitionValid(m.current, phase) {
		m.mu.Unlock()
		return &InvalidTransitionError{From: m.current, To: phase}
	}

	old := m.current
	m.current = phase

	event := PhaseChange{
		FromPhase: old,
		ToPhase:   phase,
		Timestamp: time.Now(),
		Reason:    reason,
	}

	// Notify listeners outside the lock to avoid deadlocks.
	listeners := make([]PhaseListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnPhaseChange(event)
	}
	return nil
}

// AddListener registers a listener for phase change events.
func (m *phaseMachine) AddListener(l PhaseListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// InvalidTransitionError represents an invalid phase transition attempt.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return "invalid phase transition from " + e.From.String() + " to " + e.To.String()
}
