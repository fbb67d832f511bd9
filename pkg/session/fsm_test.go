package session

import (
	"errors"
	"sync"
	"testing"
)

type phaseCollector struct {
	mu     sync.Mutex
	events []PhaseChange
}

func (c *phaseCollector) OnPhaseChange(event PhaseChange) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func TestPhaseMachineValidCycle(t *testing.T) {
	m := newPhaseMachine()
	if m.Phase() != PhaseIdle {
		t.Fatalf("initial phase = %v, want IDLE", m.Phase())
	}

	steps := []Phase{PhaseAsking, PhaseAwaitPlayback, PhaseListening, PhaseAnalyzing, PhaseAsking, PhaseAwaitPlayback, PhaseListening, PhaseClosing, PhaseDone}
	for _, p := range steps {
		if err := m.Transition(p, "test"); err != nil {
			t.Fatalf("transition to %v: %v", p, err)
		}
	}
	if m.Phase() != PhaseDone {
		t.Fatalf("final phase = %v, want DONE", m.Phase())
	}
}

func TestPhaseMachineRejectsInvalidTransition(t *testing.T) {
	m := newPhaseMachine()
	err := m.Transition(PhaseAnalyzing, "skip ahead")
	if err == nil {
		t.Fatalf("expected invalid transition error")
	}
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("error type = %T", err)
	}
	if ite.From != PhaseIdle || ite.To != PhaseAnalyzing {
		t.Fatalf("error = %v", ite)
	}
	if m.Phase() != PhaseIdle {
		t.Fatalf("failed transition must not change phase, got %v", m.Phase())
	}
}

func TestPhaseMachineRetryPathFromListening(t *testing.T) {
	m := newPhaseMachine()
	for _, p := range []Phase{PhaseAsking, PhaseAwaitPlayback, PhaseListening} {
		if err := m.Transition(p, "test"); err != nil {
			t.Fatalf("transition to %v: %v", p, err)
		}
	}
	// Empty answer loops back to asking without an analyze step.
	if err := m.Transition(PhaseAsking, "empty transcript"); err != nil {
		t.Fatalf("retry transition: %v", err)
	}
}

func TestPhaseMachineNotifiesListeners(t *testing.T) {
	m := newPhaseMachine()
	c := &phaseCollector{}
	m.AddListener(c)

	if err := m.Transition(PhaseAsking, "first question"); err != nil {
		t.Fatalf("transition: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(c.events))
	}
	ev := c.events[0]
	if ev.FromPhase != PhaseIdle || ev.ToPhase != PhaseAsking || ev.Reason != "first question" {
		t.Fatalf("event = %+v", ev)
	}
}
