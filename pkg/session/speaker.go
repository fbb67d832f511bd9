package session

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/emora-ai/emora/pkg/adapters/tts"
	"github.com/emora-ai/emora/pkg/errorsx"
	"github.com/emora-ai/emora/pkg/frames"
	"github.com/emora-ai/emora/pkg/transports"
)

// speak announces the question text for UI display, then streams synthesized
// audio chunks to the client in provider order until synthesis completes.
func (s *Session) speak(ctx context.Context, text string) error {
	if err := s.conn.Send(transports.Envelope{Type: transports.EventQuestion, Text: text}); err != nil {
		return errDisconnected
	}

	eng := s.ttsFactory(tts.Config{
		SessionID:  s.id,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
	})
	if err := eng.Start(ctx); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			s.log.Debug("tts_close_failed", "session_id", s.id, "error", err)
		}
	}()

	results := eng.Results()
	if err := eng.SendText(text); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTTSSend)
	}
	eng.Flush()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-results:
			if !ok {
				// Provider closed without a completion marker; whatever was
				// forwarded is all the client will get.
				return nil
			}
			switch fr := f.(type) {
			case frames.AudioFrame:
				chunk := base64.StdEncoding.EncodeToString(fr.RawPayload())
				err := s.conn.Send(transports.Envelope{Type: transports.EventQuestionAudio, Chunk: chunk})
				frames.ReleaseAudioFrame(fr)
				if err != nil {
					return errDisconnected
				}
			case frames.ControlFrame:
				switch fr.Code() {
				case frames.ControlSynthesisComplete:
					return nil
				case frames.ControlStop:
					return errorsx.Wrap(errors.New("synthesis stopped: "+fr.Meta()[frames.MetaReason]), errorsx.ReasonTTSSend)
				}
			}
		}
	}
}

// awaitPlayback blocks until the client reports playback finished, bounded by
// the acknowledgment timeout. Timing out is recoverable: a silent client must
// not deadlock the session, so the turn proceeds to listening regardless.
func (s *Session) awaitPlayback(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.PlaybackAckTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.log.Warn("playback_ack_timeout", "session_id", s.id, "timeout", s.cfg.PlaybackAckTimeout)
			return nil
		case code, ok := <-s.controlQ:
			if !ok {
				return errDisconnected
			}
			if code == frames.ControlPlaybackFinished {
				return nil
			}
		}
	}
}
