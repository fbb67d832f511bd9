package metrics

import (
	"sync"
	"time"

	"github.com/emora-ai/emora/pkg/session"
)

// PhaseRecorder bridges session phase transitions into the metrics stream,
// tracking per-phase dwell time.
type PhaseRecorder struct {
	sessionID string
	observer  Observer

	mu      sync.Mutex
	entered time.Time
}

func NewPhaseRecorder(sessionID string, observer Observer) *PhaseRecorder {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &PhaseRecorder{sessionID: sessionID, observer: observer, entered: time.Now()}
}

func (r *PhaseRecorder) OnPhaseChange(event session.PhaseChange) {
	r.mu.Lock()
	dwell := event.Timestamp.Sub(r.entered)
	if dwell < 0 {
		dwell = 0
	}
	r.entered = event.Timestamp
	r.mu.Unlock()

	r.observer.RecordEvent(MetricsEvent{
		Name:  EventPhaseChange,
		Time:  event.Timestamp,
		Value: float64(dwell.Milliseconds()),
		Tags: map[string]string{
			"session_id": r.sessionID,
			"from":       event.FromPhase.String(),
			"to":         event.ToPhase.String(),
		},
		Fields: map[string]any{"reason": event.Reason},
	})
}

var _ session.PhaseListener = (*PhaseRecorder)(nil)
