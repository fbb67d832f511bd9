package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/emora-ai/emora/pkg/adapters/stt"
	"github.com/emora-ai/emora/pkg/analysis"
	pmock "github.com/emora-ai/emora/pkg/providers/mock"
	"github.com/emora-ai/emora/pkg/transports"
	tmock "github.com/emora-ai/emora/pkg/transports/mock"
)

type captureStore struct {
	mu         sync.Mutex
	audio      [][]byte
	records    []AgentSession
	audioErr   error
	sessionErr error
}

func (s *captureStore) UploadAudio(ctx context.Context, sessionID string, createdAt time.Time, audio []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audioErr != nil {
		return "", s.audioErr
	}
	s.audio = append(s.audio, audio)
	return "gridfs://recordings/" + sessionID, nil
}

func (s *captureStore) UploadSession(ctx context.Context, rec AgentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionErr != nil {
		return s.sessionErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *captureStore) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *captureStore) lastRecord(t *testing.T) AgentSession {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		t.Fatalf("no session record persisted")
	}
	return s.records[len(s.records)-1]
}

// sttTap wraps the scripted STT factory so tests can inspect the sessions it
// handed out.
type sttTap struct {
	mu       sync.Mutex
	sessions []*pmock.StreamingSTT
}

func (tap *sttTap) wrap(base stt.Factory) stt.Factory {
	return func(cfg stt.Config) stt.StreamingSTT {
		eng := base(cfg).(*pmock.StreamingSTT)
		tap.mu.Lock()
		tap.sessions = append(tap.sessions, eng)
		tap.mu.Unlock()
		return eng
	}
}

func (tap *sttTap) all() []*pmock.StreamingSTT {
	tap.mu.Lock()
	defer tap.mu.Unlock()
	out := make([]*pmock.StreamingSTT, len(tap.sessions))
	copy(out, tap.sessions)
	return out
}

type harness struct {
	conn        *tmock.Conn
	store       *captureStore
	recorder    *Recorder
	analyzer    *pmock.Analyzer
	generator   *pmock.Generator
	recommender *pmock.Recommender
	tap         *sttTap
	sess        *Session
	stop        chan struct{}
}

func newHarness(t *testing.T, cfg Config, sttScripts []pmock.STTConfig, analyzer *pmock.Analyzer, generator *pmock.Generator) *harness {
	t.Helper()
	if cfg.ClosingGrace == 0 {
		cfg.ClosingGrace = time.Millisecond
	}
	conn := tmock.NewConn()
	store := &captureStore{}
	recorder := NewRecorder(store, nil, nil)
	if analyzer == nil {
		analyzer = pmock.NewAnalyzer()
	}
	if generator == nil {
		generator = pmock.NewGenerator()
	}
	recommender := pmock.NewRecommender("Weightless - Marconi Union")
	tap := &sttTap{}

	sess := New("sess-test", cfg, Deps{
		Conn:        conn,
		STT:         tap.wrap(pmock.NewSTTFactory(sttScripts...)),
		TTS:         pmock.NewTTSFactory(pmock.TTSConfig{}),
		Analyzer:    analyzer,
		Generator:   generator,
		Recommender: recommender,
		Recorder:    recorder,
	})
	h := &harness{
		conn:        conn,
		store:       store,
		recorder:    recorder,
		analyzer:    analyzer,
		generator:   generator,
		recommender: recommender,
		tap:         tap,
		sess:        sess,
		stop:        make(chan struct{}),
	}
	t.Cleanup(func() { close(h.stop) })
	return h
}

// drive reacts to outbound protocol events the way a cooperative client
// would; onEvent overrides the default reaction when it returns true.
func (h *harness) drive(onEvent func(env transports.Envelope) bool) {
	go func() {
		for {
			select {
			case <-h.stop:
				return
			case env := <-h.conn.Notifications():
				if onEvent != nil && onEvent(env) {
					continue
				}
				switch env.Type {
				case transports.EventQuestion:
					h.conn.PushPlaybackFinished()
				case transports.EventListening:
					h.conn.PushAudio([]byte("fresh-audio"))
				}
			}
		}
	}()
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.sess.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not finish")
	}
	select {
	case <-h.recorder.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("recorder did not finish")
	}
}

func countType(envs []transports.Envelope, typ string) int {
	n := 0
	for _, e := range envs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func lastOfType(envs []transports.Envelope, typ string) (transports.Envelope, bool) {
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == typ {
			return envs[i], true
		}
	}
	return transports.Envelope{}, false
}

func TestConfidenceTermination(t *testing.T) {
	analyzer := pmock.NewAnalyzer(
		analysis.Emotion{Label: "Anxious", Confidence: 0.6},
		analysis.Emotion{Label: "Anxious", Confidence: 0.95},
	)
	h := newHarness(t, Config{}, []pmock.STTConfig{
		{Transcript: "not great, to be honest"},
		{Transcript: "work has been overwhelming"},
	}, analyzer, nil)
	h.drive(nil)
	h.run(t)

	sent := h.conn.Sent()
	if got := countType(sent, transports.EventQuestion); got != 2 {
		t.Fatalf("expected 2 questions, got %d", got)
	}
	if got := countType(sent, transports.EventResult); got != 1 {
		t.Fatalf("expected 1 result, got %d", got)
	}
	if got := countType(sent, transports.EventMusicRecommendation); got != 0 {
		t.Fatalf("unexpected music recommendation on confidence stop")
	}
	rec := h.store.lastRecord(t)
	if rec.StopReason != StopReasonConfidence {
		t.Fatalf("stop reason = %q, want %q", rec.StopReason, StopReasonConfidence)
	}
	if rec.FinalEmotion != "Anxious" || rec.FinalConfidence != 0.95 {
		t.Fatalf("final emotion = %q/%v", rec.FinalEmotion, rec.FinalConfidence)
	}
	if len(rec.QAPairs) != 2 {
		t.Fatalf("expected 2 qa pairs, got %d", len(rec.QAPairs))
	}
}

func TestDirectQuestionCap(t *testing.T) {
	generator := pmock.NewGenerator(analysis.Question{Text: "What happened next?", IsDirect: true})
	analyzer := pmock.NewAnalyzer(analysis.Emotion{Label: "Sad", Confidence: 0.5})
	h := newHarness(t, Config{}, []pmock.STTConfig{{Transcript: "it is hard to say"}}, analyzer, generator)
	h.drive(nil)
	h.run(t)

	rec := h.store.lastRecord(t)
	if rec.StopReason != StopReasonDirectCap {
		t.Fatalf("stop reason = %q, want %q", rec.StopReason, StopReasonDirectCap)
	}
	if rec.DirectQuestionCount != 5 {
		t.Fatalf("direct count = %d, want 5", rec.DirectQuestionCount)
	}
	if rec.DirectQuestionCount > rec.TotalQuestionCount {
		t.Fatalf("direct count %d exceeds total %d", rec.DirectQuestionCount, rec.TotalQuestionCount)
	}
	// Opening question plus five generated direct questions.
	if got := countType(h.conn.Sent(), transports.EventQuestion); got != 6 {
		t.Fatalf("expected 6 questions, got %d", got)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("record invalid: %v", err)
	}
}

func TestDoubleEmptyAnswerClosesWithDefault(t *testing.T) {
	h := newHarness(t, Config{}, []pmock.STTConfig{{Transcript: ""}}, nil, nil)
	h.drive(nil)
	h.run(t)

	sent := h.conn.Sent()
	if got := countType(sent, transports.EventEmptyTranscript); got != 1 {
		t.Fatalf("expected 1 empty_transcript retry, got %d", got)
	}
	res, ok := lastOfType(sent, transports.EventResult)
	if !ok {
		t.Fatalf("no result emitted")
	}
	if res.Mood != DefaultEmotion || res.Confidence == nil || *res.Confidence != DefaultEmotionConfidence {
		t.Fatalf("fallback result = %q/%v, want %q/%v", res.Mood, res.Confidence, DefaultEmotion, DefaultEmotionConfidence)
	}
	if got := countType(sent, transports.EventMusicRecommendation); got != 1 {
		t.Fatalf("fallback close should recommend music, got %d events", got)
	}
	if h.analyzer.Calls() != 0 {
		t.Fatalf("empty transcripts must not be analyzed, got %d calls", h.analyzer.Calls())
	}
	rec := h.store.lastRecord(t)
	if rec.StopReason != StopReasonNoResponse {
		t.Fatalf("stop reason = %q, want %q", rec.StopReason, StopReasonNoResponse)
	}
}

func TestMusicShortcutSkipsAnalysis(t *testing.T) {
	analyzer := pmock.NewAnalyzer(analysis.Emotion{Label: "Hopeful", Confidence: 0.7})
	h := newHarness(t, Config{}, []pmock.STTConfig{
		{Transcript: "a bit tired but alright"},
		{Transcript: "yes, Play Me Some Music please"},
	}, analyzer, nil)
	h.drive(nil)
	h.run(t)

	if h.analyzer.Calls() != 1 {
		t.Fatalf("music shortcut must skip analysis, analyzer calls = %d", h.analyzer.Calls())
	}
	sent := h.conn.Sent()
	music, ok := lastOfType(sent, transports.EventMusicRecommendation)
	if !ok {
		t.Fatalf("no music recommendation emitted")
	}
	if music.Music == "" {
		t.Fatalf("music recommendation missing song")
	}
	res, ok := lastOfType(sent, transports.EventResult)
	if !ok {
		t.Fatalf("no result emitted")
	}
	if res.Mood != "Hopeful" {
		t.Fatalf("result should reuse last known emotion, got %q", res.Mood)
	}
	finals := h.recommender.Finals()
	if len(finals) != 1 || finals[0].Label != "Hopeful" {
		t.Fatalf("recommender finals = %+v", finals)
	}
	if rec := h.store.lastRecord(t); rec.StopReason != StopReasonMusicRequest {
		t.Fatalf("stop reason = %q", rec.StopReason)
	}
}

func TestPlaybackAckTimeoutStillListens(t *testing.T) {
	analyzer := pmock.NewAnalyzer(analysis.Emotion{Label: "Calm", Confidence: 0.95})
	h := newHarness(t, Config{PlaybackAckTimeout: 50 * time.Millisecond}, []pmock.STTConfig{
		{Transcript: "doing fine"},
	}, analyzer, nil)
	// Never acknowledge playback; only feed audio once listening starts.
	h.drive(func(env transports.Envelope) bool {
		return env.Type == transports.EventQuestion
	})
	h.run(t)

	sent := h.conn.Sent()
	if got := countType(sent, transports.EventListening); got == 0 {
		t.Fatalf("listen never began after ack timeout")
	}
	if _, ok := lastOfType(sent, transports.EventResult); !ok {
		t.Fatalf("session did not reach a result")
	}
}

func TestStaleAudioNeverReachesSTT(t *testing.T) {
	analyzer := pmock.NewAnalyzer(analysis.Emotion{Label: "Calm", Confidence: 0.95})
	h := newHarness(t, Config{}, []pmock.STTConfig{{Transcript: "all good"}}, analyzer, nil)
	h.drive(func(env transports.Envelope) bool {
		if env.Type == transports.EventQuestion {
			// Audio arriving while the question plays is stale by definition.
			h.conn.PushAudio([]byte("stale-audio"))
			h.conn.PushPlaybackFinished()
			return true
		}
		return false
	})
	h.run(t)

	for _, eng := range h.tap.all() {
		for _, chunk := range eng.SentAudio() {
			if string(chunk) == "stale-audio" {
				t.Fatalf("stale chunk was forwarded to STT")
			}
		}
	}
}

func TestDisconnectRecordsExactlyOnce(t *testing.T) {
	analyzer := pmock.NewAnalyzer(analysis.Emotion{Label: "Sad", Confidence: 0.4})
	h := newHarness(t, Config{}, []pmock.STTConfig{{Transcript: "not so well"}}, analyzer, nil)
	listens := 0
	h.drive(func(env transports.Envelope) bool {
		if env.Type == transports.EventListening {
			listens++
			if listens >= 2 {
				h.conn.Disconnect()
				return true
			}
		}
		return false
	})
	h.run(t)

	if got := h.store.sessionCount(); got != 1 {
		t.Fatalf("expected exactly 1 session upload, got %d", got)
	}
	rec := h.store.lastRecord(t)
	if rec.StopReason != StopReasonDisconnect {
		t.Fatalf("stop reason = %q, want %q", rec.StopReason, StopReasonDisconnect)
	}
	if len(rec.QAPairs) != 1 {
		t.Fatalf("partial session should keep completed turns, got %d", len(rec.QAPairs))
	}

	// A racing cleanup path calling Record again must be a no-op.
	h.recorder.Record(AgentSession{SessionID: "sess-test"}, []byte("more"))
	time.Sleep(20 * time.Millisecond)
	if got := h.store.sessionCount(); got != 1 {
		t.Fatalf("record ran twice: %d uploads", got)
	}
}

func TestEmptySessionSkipsUpload(t *testing.T) {
	h := newHarness(t, Config{}, []pmock.STTConfig{{Transcript: ""}}, nil, nil)
	h.drive(func(env transports.Envelope) bool {
		if env.Type == transports.EventQuestion {
			h.conn.Disconnect()
			return true
		}
		return false
	})
	h.run(t)

	if got := h.store.sessionCount(); got != 0 {
		t.Fatalf("empty session must skip upload, got %d", got)
	}
}

func TestAnalyzerFailureEndsSessionWithError(t *testing.T) {
	analyzer := pmock.NewAnalyzer()
	analyzer.FailWith(0, errors.New("model unavailable"))
	h := newHarness(t, Config{}, []pmock.STTConfig{{Transcript: "hello there"}}, analyzer, nil)
	h.drive(nil)
	h.run(t)

	sent := h.conn.Sent()
	if got := countType(sent, transports.EventError); got != 1 {
		t.Fatalf("expected 1 error event, got %d", got)
	}
	if got := countType(sent, transports.EventQuestion); got != 1 {
		t.Fatalf("session must end after analyzer failure, got %d questions", got)
	}
	rec := h.store.lastRecord(t)
	if rec.StopReason != "emotion_analyzer" {
		t.Fatalf("stop reason = %q", rec.StopReason)
	}
}

func TestGeneratorPromptCarriesReminderFlags(t *testing.T) {
	analyzer := pmock.NewAnalyzer(
		analysis.Emotion{Label: "Anxious", Confidence: 0.85},
		analysis.Emotion{Label: "Anxious", Confidence: 0.85},
		analysis.Emotion{Label: "Anxious", Confidence: 0.95},
	)
	generator := pmock.NewGenerator(analysis.Question{Text: "What is weighing on you?", IsDirect: false})
	h := newHarness(t, Config{}, []pmock.STTConfig{{Transcript: "quite stressed lately"}}, analyzer, generator)
	h.drive(nil)
	h.run(t)

	prompts := generator.Prompts()
	if len(prompts) != 2 {
		t.Fatalf("expected 2 generator calls, got %d", len(prompts))
	}
	if !prompts[0].HighConfidenceReached || prompts[0].MusicReminderGiven {
		t.Fatalf("first prompt flags = %+v, want armed reminder", prompts[0])
	}
	if !prompts[1].MusicReminderGiven {
		t.Fatalf("reminder must be marked given after first offer")
	}
}

func TestTranscriptEventPerAnswer(t *testing.T) {
	analyzer := pmock.NewAnalyzer(analysis.Emotion{Label: "Calm", Confidence: 0.95})
	h := newHarness(t, Config{}, []pmock.STTConfig{
		{Transcript: "feeling peaceful", InterimTranscript: "feeling", EmitInterim: true},
	}, analyzer, nil)
	h.drive(nil)
	h.run(t)

	sent := h.conn.Sent()
	var sawPartial, sawFinal bool
	for _, env := range sent {
		if env.Type != transports.EventTranscript {
			continue
		}
		if env.IsFinal == nil {
			t.Fatalf("transcript event %q missing is_final", env.Transcript)
		}
		if *env.IsFinal {
			sawFinal = true
			if env.Transcript != "feeling peaceful" {
				t.Fatalf("final transcript = %q", env.Transcript)
			}
		} else {
			sawPartial = true
		}
	}
	if !sawPartial || !sawFinal {
		t.Fatalf("partial=%v final=%v, want both mirrored", sawPartial, sawFinal)
	}
}

func TestSTTStopFallsBackToAccumulated(t *testing.T) {
	analyzer := pmock.NewAnalyzer()
	h := newHarness(t, Config{}, []pmock.STTConfig{{EmitStop: true}}, analyzer, nil)
	h.drive(nil)
	h.run(t)

	// Provider stop with nothing accumulated behaves like an empty answer:
	// one retry, then the fallback close.
	rec := h.store.lastRecord(t)
	if rec.StopReason != StopReasonNoResponse {
		t.Fatalf("stop reason = %q, want %q", rec.StopReason, StopReasonNoResponse)
	}
	if h.analyzer.Calls() != 0 {
		t.Fatalf("analyzer must not run on provider stop, got %d calls", h.analyzer.Calls())
	}
}
