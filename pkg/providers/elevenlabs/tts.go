package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emora-ai/emora/pkg/adapters/tts"
	"github.com/emora-ai/emora/pkg/errorsx"
	"github.com/emora-ai/emora/pkg/frames"
	"github.com/emora-ai/emora/pkg/logging"
)

type Config struct {
	APIKey          string
	VoiceID         string
	ModelID         string
	OutputFormat    string
	SampleRate      int
	Stability       float64
	SimilarityBoost float64
}

// StreamingTTS synthesizes one question over the ElevenLabs stream-input
// websocket. Chunks are decoded and emitted in the order the provider sends
// them; a single read loop preserves that order.
type StreamingTTS struct {
	cfg       Config
	sessionID string
	conn      *websocket.Conn
	out       chan frames.Frame
	writeCh   chan wsMessage
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	logger    *slog.Logger
}

type wsMessage struct {
	text string
	eos  bool
}

func New(cfg Config) tts.Factory {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_22050_32"
	}
	if cfg.Stability == 0 && cfg.SimilarityBoost == 0 {
		cfg.Stability = 0.5
		cfg.SimilarityBoost = 0.8
	}
	return func(c tts.Config) tts.StreamingTTS {
		return &StreamingTTS{
			cfg:       cfg,
			sessionID: c.SessionID,
			out:       make(chan frames.Frame, 256),
			writeCh:   make(chan wsMessage, 16),
			logger:    logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
		}
	}
}

func (s *StreamingTTS) Name() string { return "elevenlabs_tts" }

func (s *StreamingTTS) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return errorsx.Wrap(errors.New("missing elevenlabs config"), errorsx.ReasonTTSConnect)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	u := s.buildURL()

	s.logger.Debug("connecting to ElevenLabs",
		slog.String("session_id", s.sessionID),
		slog.String("output_format", s.cfg.OutputFormat))

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.Dial(u, http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			s.logger.Error("elevenlabs_rate_limited",
				slog.String("session_id", s.sessionID),
				slog.String("status", resp.Status))
			return errorsx.Wrap(err, errorsx.ReasonRateLimit)
		}
		s.logger.Error("elevenlabs_connect_failed",
			slog.String("session_id", s.sessionID),
			slog.String("error", err.Error()))
		return errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}

	s.conn = conn
	s.logger.Info("connected to ElevenLabs",
		slog.String("session_id", s.sessionID),
		slog.String("output_format", s.cfg.OutputFormat))

	_ = s.send(map[string]any{
		"text":                   " ",
		"try_trigger_generation": true,
		"voice_settings": map[string]any{
			"stability":        s.cfg.Stability,
			"similarity_boost": s.cfg.SimilarityBoost,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	})
	go s.readLoop()
	go s.writeLoop()
	return nil
}

func (s *StreamingTTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("tts close called",
		slog.String("session_id", s.sessionID))
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return s.conn.Close()
	}
	return nil
}

func (s *StreamingTTS) SendText(text string) error {
	if s.conn == nil {
		return errorsx.Wrap(errors.New("not connected"), errorsx.ReasonTTSSend)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !strings.HasSuffix(text, " ") {
		text += " "
	}
	select {
	case s.writeCh <- wsMessage{text: text}:
	case <-s.ctx.Done():
	}
	return nil
}

// Flush signals end of input; ElevenLabs finalizes generation and sends the
// remaining chunks followed by isFinal.
func (s *StreamingTTS) Flush() {
	select {
	case s.writeCh <- wsMessage{eos: true}:
	case <-s.ctx.Done():
	}
}

func (s *StreamingTTS) Results() <-chan frames.Frame { return s.out }

func (s *StreamingTTS) buildURL() string {
	base := "wss://api.elevenlabs.io/v1/text-to-speech/" + s.cfg.VoiceID + "/stream-input"
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("optimize_streaming_latency", "4")
	return base + "?" + q.Encode()
}

func (s *StreamingTTS) writeLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.writeCh:
			if msg.eos {
				_ = s.send(map[string]any{"text": ""})
				continue
			}
			_ = s.send(map[string]any{"text": msg.text, "try_trigger_generation": true})
		case <-ticker.C:
			// Keep-alive: empty text prevents the provider's 20s idle timeout.
			_ = s.send(map[string]any{"text": " "})
		}
	}
}

func (s *StreamingTTS) readLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				if s.ctx.Err() == nil {
					s.logger.Error("tts read loop error",
						slog.String("session_id", s.sessionID),
						slog.String("error", err.Error()))
					s.emitControl(frames.ControlStop, "read_error")
				}
				return
			}
			s.handleMessage(data)
		}
	}
}

func (s *StreamingTTS) handleMessage(data []byte) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("tts websocket raw data", "data", string(data))
		return
	}
	if final, ok := msg["isFinal"].(bool); ok && final {
		s.emitControl(frames.ControlSynthesisComplete, "is_final")
		return
	}
	audio, ok := msg["audio"].(string)
	if !ok {
		if a, ok := msg["audio_base_64"].(string); ok {
			audio = a
		} else if a, ok := msg["audio_base64"].(string); ok {
			audio = a
		} else {
			if _, isAlign := msg["alignment"]; !isAlign {
				s.logger.Debug("tts websocket message", "payload", msg)
			}
			return
		}
	}
	if audio == "" {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		s.logger.Error("tts audio decode error", "error", err)
		return
	}

	meta := map[string]string{frames.MetaSource: "tts"}
	f := frames.NewAudioFrame(s.sessionID, time.Now().UnixNano(), raw, s.cfg.SampleRate, 1, meta)

	// Blocking send keeps provider chunk order intact; the playback driver
	// is the only consumer and drains promptly.
	select {
	case s.out <- f:
	case <-s.ctx.Done():
	}
}

func (s *StreamingTTS) emitControl(code frames.ControlCode, reason string) {
	f := frames.NewControlFrame(s.sessionID, time.Now().UnixNano(), code, map[string]string{
		frames.MetaSource: "tts",
		frames.MetaReason: reason,
	})
	select {
	case s.out <- f:
	case <-s.ctx.Done():
	}
}

func (s *StreamingTTS) send(payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.StreamingTTS = (*StreamingTTS)(nil)
