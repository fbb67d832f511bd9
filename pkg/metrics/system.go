package metrics

import (
	"time"

	"github.com/emora-ai/emora/pkg/frames"
)

// RecordSystemFrame forwards a lifecycle system frame into the metrics
// stream. Frame meta becomes the event tags and the frame PTS (UnixNano)
// the event time.
func RecordSystemFrame(obs Observer, f frames.SystemFrame, value float64) {
	if obs == nil {
		obs = NoopObserver{}
	}
	obs.RecordEvent(MetricsEvent{
		Name:  f.Name(),
		Time:  time.Unix(0, f.PTS()),
		Value: value,
		Tags:  f.Meta(),
	})
}
