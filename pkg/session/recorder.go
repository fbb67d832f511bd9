package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emora-ai/emora/pkg/errorsx"
)

// Store persists a finished session. Implementations must be safe for use
// from a background goroutine that outlives the session.
type Store interface {
	// UploadAudio stores the session recording and returns its URL.
	UploadAudio(ctx context.Context, sessionID string, createdAt time.Time, audio []byte) (string, error)
	// UploadSession stores the session aggregate.
	UploadSession(ctx context.Context, rec AgentSession) error
}

// Transcoder compresses the raw capture before upload.
type Transcoder interface {
	Transcode(ctx context.Context, raw []byte) ([]byte, error)
	// Format names the output container, e.g. "flac".
	Format() string
}

const defaultPersistTimeout = 2 * time.Minute

// Recorder hands a finished session to durable storage on a detached
// execution path. Record is fire-and-forget but exactly-once per session:
// concurrent cleanup paths (disconnect racing natural completion) collapse
// into a single persistence run.
type Recorder struct {
	store      Store
	transcoder Transcoder
	log        *slog.Logger
	timeout    time.Duration

	once sync.Once
	done chan struct{}
}

func NewRecorder(store Store, transcoder Transcoder, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		store:      store,
		transcoder: transcoder,
		log:        log,
		timeout:    defaultPersistTimeout,
		done:       make(chan struct{}),
	}
}

// Record schedules background persistence. Only the first call per recorder
// has any effect.
func (r *Recorder) Record(rec AgentSession, rawAudio []byte) {
	r.once.Do(func() {
		go r.persist(rec, rawAudio)
	})
}

// Done is closed once background persistence has finished or been skipped.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// persist never surfaces failure to the session: the client-visible close
// already happened, so every error here is logged and swallowed.
func (r *Recorder) persist(rec AgentSession, rawAudio []byte) {
	defer close(r.done)

	log := r.log.With("session_id", rec.SessionID)
	if r.store == nil {
		log.Debug("persistence_disabled")
		return
	}
	if len(rawAudio) == 0 {
		log.Info("empty_session_skipped")
		return
	}
	if err := rec.Validate(); err != nil {
		log.Warn("session_record_invalid", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	audio := rawAudio
	if r.transcoder != nil {
		out, err := r.transcoder.Transcode(ctx, rawAudio)
		if err != nil {
			log.Warn("transcode_failed", "error", errorsx.Wrap(err, errorsx.ReasonTranscode))
		} else {
			audio = out
		}
	}

	url, err := r.store.UploadAudio(ctx, rec.SessionID, rec.CreatedAt, audio)
	if err != nil {
		log.Error("audio_upload_failed", "error", errorsx.Wrap(err, errorsx.ReasonAudioUpload))
	} else {
		rec.AudioURL = url
	}

	if err := r.store.UploadSession(ctx, rec); err != nil {
		log.Error("session_upload_failed", "error", errorsx.Wrap(err, errorsx.ReasonSessionUpload))
		return
	}
	log.Info("session_persisted",
		"qa_pairs", len(rec.QAPairs),
		"stop_reason", rec.StopReason,
		"audio_bytes", len(audio),
	)
}
