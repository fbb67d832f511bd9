// Package session implements the real-time voice turn-taking loop: ask a
// question over TTS, wait for playback, listen through a VAD-gated STT
// session, analyze the answer, and repeat until a stopping rule fires. The
// finished session is handed to durable storage without blocking the close.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/emora-ai/emora/pkg/adapters/stt"
	"github.com/emora-ai/emora/pkg/adapters/tts"
	"github.com/emora-ai/emora/pkg/analysis"
	"github.com/emora-ai/emora/pkg/errorsx"
	"github.com/emora-ai/emora/pkg/frames"
	"github.com/emora-ai/emora/pkg/transports"
)

// Stop reasons recorded on the persisted session.
const (
	StopReasonConfidence   = "confidence_reached"
	StopReasonDirectCap    = "direct_question_cap"
	StopReasonMusicRequest = "music_request"
	StopReasonNoResponse   = "no_response"
	StopReasonDisconnect   = "client_disconnected"
)

// Deps are the injected collaborators for one session. They are created once
// per process and never mutated; the session only reads them.
type Deps struct {
	Conn        transports.Conn
	STT         stt.Factory
	TTS         tts.Factory
	Analyzer    analysis.EmotionAnalyzer
	Generator   analysis.QuestionGenerator
	Recommender analysis.MusicRecommender
	Recorder    *Recorder
	Logger      *slog.Logger
}

// Session drives one conversation. The controller goroutine is the sole
// driver of phase transitions; ingress runs beside it for the connection's
// lifetime, and STT sender/receiver tasks are scoped to single Listen phases.
type Session struct {
	id  string
	cfg Config
	log *slog.Logger

	conn        transports.Conn
	sttFactory  stt.Factory
	ttsFactory  tts.Factory
	analyzer    analysis.EmotionAnalyzer
	generator   analysis.QuestionGenerator
	recommender analysis.MusicRecommender
	recorder    *Recorder

	fsm      *phaseMachine
	audioQ   chan frames.AudioFrame
	controlQ chan frames.ControlCode
	capture  capture
	done     chan struct{}

	createdAt time.Time

	// Loop state, owned exclusively by the controller goroutine.
	pairs          []QAPair
	totalCount     int
	directCount    int
	highConfidence bool
	reminderGiven  bool
	lastEmotion    *analysis.Emotion
	finalEmotion   analysis.Emotion
	finalSet       bool
}

func New(id string, cfg Config, deps Deps) *Session {
	cfg = cfg.withDefaults()
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		id:          id,
		cfg:         cfg,
		log:         log,
		conn:        deps.Conn,
		sttFactory:  deps.STT,
		ttsFactory:  deps.TTS,
		analyzer:    deps.Analyzer,
		generator:   deps.Generator,
		recommender: deps.Recommender,
		recorder:    deps.Recorder,
		fsm:         newPhaseMachine(),
		audioQ:      make(chan frames.AudioFrame, cfg.AudioQueueSize),
		controlQ:    make(chan frames.ControlCode, cfg.ControlQueueSize),
		done:        make(chan struct{}),
		createdAt:   time.Now(),
	}
}

// AddPhaseListener registers an observer for phase transitions. Must be
// called before Run.
func (s *Session) AddPhaseListener(l PhaseListener) {
	s.fsm.AddListener(l)
}

// Phase returns the current loop phase.
func (s *Session) Phase() Phase {
	return s.fsm.Phase()
}

// Run executes the conversation to completion and blocks until the client
// connection has been closed. Persistence continues in the background.
func (s *Session) Run(ctx context.Context) {
	s.log.Info("session_started", "session_id", s.id)

	go s.runIngress()
	reason := s.converse(ctx)

	s.setPhase(PhaseClosing, reason)
	close(s.done)

	s.finish(reason)

	// Let the client drain its receive buffer before tearing down.
	if s.cfg.ClosingGrace > 0 {
		time.Sleep(s.cfg.ClosingGrace)
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug("conn_close_failed", "session_id", s.id, "error", err)
	}

	s.setPhase(PhaseDone, reason)
	s.log.Info("session_ended",
		"session_id", s.id,
		"reason", reason,
		"turns", len(s.pairs),
		"questions", s.totalCount,
		"direct_questions", s.directCount,
	)
}

// converse runs the Ask -> AwaitPlayback -> Listen -> Analyze -> Decide loop
// and returns the stop reason. Every exit path has already emitted its
// terminal client event (result, music_recommendation, or error).
func (s *Session) converse(ctx context.Context) string {
	question := analysis.Question{Text: s.cfg.OpeningQuestion}
	retryPrompt := ""
	emptyStreak := 0

	for {
		text := question.Text
		if retryPrompt != "" {
			text = retryPrompt
			retryPrompt = ""
		} else {
			s.totalCount++
		}

		s.setPhase(PhaseAsking, "ask")
		s.drainControl()
		if err := s.speak(ctx, text); err != nil {
			return s.failTurn(err, "tts")
		}

		s.setPhase(PhaseAwaitPlayback, "spoken")
		if err := s.awaitPlayback(ctx); err != nil {
			return s.failTurn(err, "playback")
		}

		if dropped := s.drainStaleAudio(); dropped > 0 {
			s.log.Debug("stale_audio_discarded", "session_id", s.id, "chunks", dropped)
		}

		s.setPhase(PhaseListening, "playback_done")
		if err := s.conn.Send(transports.Envelope{Type: transports.EventListening}); err != nil {
			return s.failTurn(errDisconnected, "transport")
		}
		transcript, err := s.listen(ctx)
		if err != nil {
			return s.failTurn(err, "stt")
		}

		if transcript == "" {
			emptyStreak++
			if emptyStreak >= 2 {
				// Two consecutive empty answers: close with the last known
				// emotion (or the neutral default) and a recommendation
				// instead of analyzing empty text.
				s.closeOut(ctx, s.lastKnownEmotion(), true)
				return StopReasonNoResponse
			}
			s.log.Info("empty_transcript_retry", "session_id", s.id)
			if err := s.conn.Send(transports.Envelope{Type: transports.EventEmptyTranscript, Message: s.cfg.RetryPrompt}); err != nil {
				return s.failTurn(errDisconnected, "transport")
			}
			retryPrompt = s.cfg.RetryPrompt
			continue
		}
		emptyStreak = 0

		if err := s.conn.Send(transports.Envelope{
			Type:       transports.EventTranscript,
			Transcript: transcript,
			IsFinal:    transports.Bool(true),
		}); err != nil {
			return s.failTurn(errDisconnected, "transport")
		}

		if s.isMusicRequest(transcript) {
			// Explicit shortcut: skip analysis, reuse the last known emotion.
			s.closeOut(ctx, s.lastKnownEmotion(), true)
			return StopReasonMusicRequest
		}

		s.setPhase(PhaseAnalyzing, "transcript_ready")
		if err := s.conn.Send(transports.Envelope{Type: transports.EventAnalyzing}); err != nil {
			return s.failTurn(errDisconnected, "transport")
		}

		emotion, err := s.analyzer.Analyze(ctx, transcript, s.history())
		if err != nil {
			return s.failTurn(errorsx.Wrap(err, errorsx.ReasonAnalyzer), "analyzer")
		}
		emotion.Confidence = analysis.ClampConfidence(emotion.Confidence)
		s.lastEmotion = &emotion

		s.pairs = append(s.pairs, QAPair{
			Question:                 question.Text,
			Answer:                   transcript,
			Emotion:                  emotion.Label,
			Confidence:               emotion.Confidence,
			NegativeEmotionBreakdown: emotion.NegativeBreakdown,
			IsDirect:                 question.IsDirect,
		})

		if err := s.conn.Send(transports.Envelope{
			Type:             transports.EventIntermediateResult,
			Mood:             emotion.Label,
			Confidence:       transports.Float(emotion.Confidence),
			NegativeEmotions: emotion.NegativeBreakdown,
		}); err != nil {
			return s.failTurn(errDisconnected, "transport")
		}

		if !s.highConfidence && emotion.Confidence >= s.cfg.ReminderConfidence {
			s.highConfidence = true
		}

		// Stopping rules, in order.
		if emotion.Confidence >= s.cfg.StopConfidence {
			s.closeOut(ctx, emotion, false)
			return StopReasonConfidence
		}
		if s.directCount >= s.cfg.MaxDirectQuestions {
			s.closeOut(ctx, emotion, false)
			return StopReasonDirectCap
		}

		next, err := s.generator.NextQuestion(ctx, analysis.Prompt{
			History:               s.history(),
			CurrentAnswer:         transcript,
			CurrentEmotion:        emotion,
			DirectCount:           s.directCount,
			MaxDirectQuestions:    s.cfg.MaxDirectQuestions,
			HighConfidenceReached: s.highConfidence,
			MusicReminderGiven:    s.reminderGiven,
		})
		if err != nil {
			return s.failTurn(errorsx.Wrap(err, errorsx.ReasonGenerator), "generator")
		}
		if s.highConfidence && !s.reminderGiven {
			// The generator appends the one-time music reminder when the
			// flag is armed; mark it spent so it is offered at most once.
			s.reminderGiven = true
		}
		if next.IsDirect {
			s.directCount++
		}
		question = next
	}
}

// closeOut emits the terminal result, optionally followed by a music
// recommendation, and pins the final emotion for persistence.
func (s *Session) closeOut(ctx context.Context, final analysis.Emotion, withMusic bool) {
	s.finalEmotion = final
	s.finalSet = true

	if err := s.conn.Send(transports.Envelope{
		Type:       transports.EventResult,
		Mood:       final.Label,
		Confidence: transports.Float(final.Confidence),
	}); err != nil {
		return
	}
	if !withMusic {
		return
	}

	rec, err := s.recommender.Recommend(ctx, s.history(), final)
	if err != nil {
		s.log.Error("recommendation_failed", "session_id", s.id, "error", errorsx.Wrap(err, errorsx.ReasonRecommender))
		_ = s.conn.Send(transports.Envelope{Type: transports.EventError, Message: "music recommendation unavailable"})
		return
	}
	_ = s.conn.Send(transports.Envelope{Type: transports.EventMusicRecommendation, Music: rec.Song})
}

// failTurn routes a phase failure through the common cleanup path. Client
// disconnects are terminal but silent; provider faults are reported to the
// client as a single error event before the session ends.
func (s *Session) failTurn(err error, stage string) string {
	if errors.Is(err, errDisconnected) || errors.Is(err, context.Canceled) || errors.Is(err, transports.ErrClosed) {
		s.log.Info("client_disconnected", "session_id", s.id, "stage", stage)
		return StopReasonDisconnect
	}

	s.log.Error("turn_failed", "session_id", s.id, "stage", stage, "error", err)
	_ = s.conn.Send(transports.Envelope{Type: transports.EventError, Message: stage + " failure ended the session"})

	if reason := errorsx.Reason(err); reason != errorsx.ReasonUnknown {
		return string(reason)
	}
	return stage + "_error"
}

// finish builds the write-once session aggregate and hands it to the
// recorder exactly once, whatever path ended the loop.
func (s *Session) finish(reason string) {
	if s.recorder == nil {
		return
	}
	final := s.finalEmotion
	if !s.finalSet {
		final = s.lastKnownEmotion()
	}
	rec := AgentSession{
		SessionID:           s.id,
		CreatedAt:           s.createdAt,
		EndedAt:             time.Now(),
		QAPairs:             s.pairs,
		FinalEmotion:        final.Label,
		FinalConfidence:     final.Confidence,
		TotalQuestionCount:  s.totalCount,
		DirectQuestionCount: s.directCount,
		StopReason:          reason,
	}
	s.recorder.Record(rec, s.capture.bytes())
}

// lastKnownEmotion returns the most recent analyzed emotion, or the neutral
// default when nothing was ever analyzed.
func (s *Session) lastKnownEmotion() analysis.Emotion {
	if s.lastEmotion != nil {
		return *s.lastEmotion
	}
	return analysis.Emotion{Label: DefaultEmotion, Confidence: DefaultEmotionConfidence}
}

func (s *Session) isMusicRequest(transcript string) bool {
	return strings.Contains(strings.ToLower(transcript), strings.ToLower(s.cfg.MusicTrigger))
}

func (s *Session) history() []analysis.Exchange {
	out := make([]analysis.Exchange, 0, len(s.pairs))
	for _, p := range s.pairs {
		out = append(out, analysis.Exchange{
			Question:   p.Question,
			Answer:     p.Answer,
			Emotion:    p.Emotion,
			Confidence: p.Confidence,
		})
	}
	return out
}

// setPhase transitions the FSM, logging rather than failing on an invalid
// transition: phase tracking is observability, not control flow.
func (s *Session) setPhase(phase Phase, reason string) {
	if err := s.fsm.Transition(phase, reason); err != nil {
		s.log.Debug("phase_transition_skipped", "session_id", s.id, "to", phase.String(), "error", err)
	}
}
