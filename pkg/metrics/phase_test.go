package metrics

import (
	"testing"
	"time"

	"github.com/emora-ai/emora/pkg/session"
)

func TestPhaseRecorderEmitsDwellTime(t *testing.T) {
	mem := NewMemoryObserver()
	rec := NewPhaseRecorder("sess-1", mem)

	at := time.Now().Add(120 * time.Millisecond)
	rec.OnPhaseChange(session.PhaseChange{
		FromPhase: session.PhaseAsking,
		ToPhase:   session.PhaseAwaitPlayback,
		Timestamp: at,
		Reason:    "spoken",
	})

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Name != EventPhaseChange {
		t.Fatalf("event name = %q", ev.Name)
	}
	if ev.Tags["from"] != "ASKING" || ev.Tags["to"] != "AWAIT_PLAYBACK" {
		t.Fatalf("tags = %v", ev.Tags)
	}
	if ev.Value < 0 {
		t.Fatalf("dwell must be non-negative, got %v", ev.Value)
	}
}

func TestPhaseRecorderNilObserver(t *testing.T) {
	rec := NewPhaseRecorder("sess-1", nil)
	rec.OnPhaseChange(session.PhaseChange{Timestamp: time.Now()})
}
