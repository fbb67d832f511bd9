package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/emora-ai/emora/pkg/adapters/stt"
	"github.com/emora-ai/emora/pkg/errorsx"
	"github.com/emora-ai/emora/pkg/frames"
	"github.com/emora-ai/emora/pkg/transports"
)

// errDisconnected marks a client disconnect observed mid-phase.
var errDisconnected = errors.New("client disconnected")

// listen runs one listening phase: it opens a fresh STT session, forwards
// queued audio at a bounded rate, mirrors partial transcripts to the client,
// and returns the committed utterance once VAD fires. A provider stop falls
// back to whatever transcript accumulated, possibly empty.
func (s *Session) listen(ctx context.Context) (string, error) {
	eng := s.sttFactory(stt.Config{
		SessionID:              s.id,
		SampleRate:             s.cfg.SampleRate,
		Encoding:               s.cfg.Encoding,
		Language:               s.cfg.Language,
		VADSilenceThresholdMS:  s.cfg.VADSilenceThresholdMS,
		VADActivationThreshold: s.cfg.VADActivationThreshold,
		MinSpeechDurationMS:    s.cfg.MinSpeechDurationMS,
		MinSilenceDurationMS:   s.cfg.MinSilenceDurationMS,
	})
	if err := eng.Start(ctx); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}

	results := eng.Results()
	stopSend := make(chan struct{})
	connLost := make(chan struct{})
	senderDone := make(chan struct{})

	go s.sendAudio(eng, stopSend, connLost, senderDone)

	var acc strings.Builder
	var phaseErr error

recv:
	for {
		select {
		case <-ctx.Done():
			phaseErr = ctx.Err()
			break recv
		case <-connLost:
			phaseErr = errDisconnected
			break recv
		case f, ok := <-results:
			if !ok {
				break recv
			}
			switch fr := f.(type) {
			case frames.TextFrame:
				if fr.IsFinal() {
					if acc.Len() > 0 {
						acc.WriteByte(' ')
					}
					acc.WriteString(fr.Text())
				} else if fr.Text() != "" {
					// Mirror the partial so the client can render live
					// captions; superseded by the committed transcript.
					_ = s.conn.Send(transports.Envelope{
						Type:       transports.EventTranscript,
						Transcript: fr.Text(),
						IsFinal:    transports.Bool(false),
					})
				}
			case frames.ControlFrame:
				switch fr.Code() {
				case frames.ControlUtteranceEnd:
					break recv
				case frames.ControlStop:
					s.log.Warn("stt_stopped", "session_id", s.id, "reason", fr.Meta()[frames.MetaReason])
					break recv
				}
			}
		}
	}

	// Cancel the sender and await it so no chunk is sent after close and no
	// two STT sessions are ever mid-flight concurrently.
	close(stopSend)
	<-senderDone
	if err := eng.Close(); err != nil {
		s.log.Debug("stt_close_failed", "session_id", s.id, "error", err)
	}

	return strings.TrimSpace(acc.String()), phaseErr
}

// sendAudio drains the shared audio queue into the provider, throttled to the
// minimum inter-send interval by sleeping the remaining time rather than
// dropping chunks.
func (s *Session) sendAudio(eng stt.StreamingSTT, stopSend, connLost, senderDone chan struct{}) {
	defer close(senderDone)

	var lastSend time.Time
	for {
		select {
		case <-stopSend:
			return
		case f, ok := <-s.audioQ:
			if !ok {
				close(connLost)
				return
			}
			if !lastSend.IsZero() {
				if wait := s.cfg.MinSendInterval - time.Since(lastSend); wait > 0 {
					time.Sleep(wait)
				}
			}
			err := eng.SendAudio(f)
			lastSend = time.Now()
			frames.ReleaseAudioFrame(f)
			if err != nil {
				// The receiver observes the provider's own stop event; a
				// failed send is not itself terminal.
				s.log.Debug("stt_send_failed", "session_id", s.id, "error", errorsx.Wrap(err, errorsx.ReasonSTTSend))
			}
		}
	}
}
