package metrics

import (
	"testing"
	"time"

	"github.com/emora-ai/emora/pkg/frames"
)

func TestRecordSystemFrameBecomesEvent(t *testing.T) {
	mem := NewMemoryObserver()
	at := time.Now()

	f := frames.NewSystemFrame("sess-1", at.UnixNano(), EventSessionEnd, nil)
	RecordSystemFrame(mem, f, 4200)

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Name != EventSessionEnd {
		t.Fatalf("event name = %q", ev.Name)
	}
	if ev.Tags[frames.MetaSessionID] != "sess-1" {
		t.Fatalf("tags = %v", ev.Tags)
	}
	if ev.Value != 4200 {
		t.Fatalf("value = %v", ev.Value)
	}
	if !ev.Time.Equal(time.Unix(0, at.UnixNano())) {
		t.Fatalf("time = %v, want %v", ev.Time, at)
	}
}

func TestRecordSystemFrameNilObserver(t *testing.T) {
	f := frames.NewSystemFrame("sess-1", time.Now().UnixNano(), EventSessionStart, nil)
	RecordSystemFrame(nil, f, 0)
}
