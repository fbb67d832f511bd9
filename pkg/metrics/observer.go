package metrics

import "time"

// Event names emitted by the conversation engine.
const (
	EventPhaseChange  = "session.phase_change"
	EventSessionStart = "session.start"
	EventSessionEnd   = "session.end"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
