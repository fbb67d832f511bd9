package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/emora-ai/emora/pkg/adapters/stt"
	"github.com/emora-ai/emora/pkg/errorsx"
	"github.com/emora-ai/emora/pkg/frames"
	"github.com/emora-ai/emora/pkg/logging"
)

type Config struct {
	APIKey   string
	Model    string
	Language string
	Interim  bool
}

// StreamingSTT drives one Deepgram listen-websocket connection for one
// listening phase. VAD utterance detection maps onto Deepgram's native
// utterance-end events.
type StreamingSTT struct {
	cfg      Config
	vad      stt.Config
	dgClient *client.WSCallback
	out      chan frames.Frame

	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	metaLogged bool
	logger     *slog.Logger
}

// New builds a factory bound to the vendor credentials; each listening phase
// gets its own connection via the returned stt.Factory.
func New(cfg Config) stt.Factory {
	return func(vad stt.Config) stt.StreamingSTT {
		return &StreamingSTT{
			cfg:    cfg,
			vad:    vad,
			out:    make(chan frames.Frame, 256),
			logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
		}
	}
}

func (s *StreamingSTT) Name() string { return "deepgram_streaming" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.pipeReader, s.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	sampleRate := s.vad.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	encoding := s.vad.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	language := s.cfg.Language
	if language == "" {
		language = s.vad.Language
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          s.cfg.Model,
		Language:       language,
		Encoding:       encoding,
		SampleRate:     sampleRate,
		InterimResults: s.cfg.Interim,
		VadEvents:      true,
		SmartFormat:    true,
	}
	if s.vad.VADSilenceThresholdMS > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", s.vad.VADSilenceThresholdMS)
	}
	// Activation threshold and min speech/silence durations have no direct
	// Deepgram options in SDK v3; utterance_end_ms carries the VAD contract.
	if s.vad.VADActivationThreshold > 0 || s.vad.MinSpeechDurationMS > 0 || s.vad.MinSilenceDurationMS > 0 {
		s.logger.Debug("vad_option_unsupported",
			slog.String("session_id", s.vad.SessionID),
			slog.Float64("activation_threshold", s.vad.VADActivationThreshold))
	}

	s.logger.Info("initializing deepgram connection",
		slog.String("session_id", s.vad.SessionID),
		slog.String("model", s.cfg.Model),
		slog.Int("utterance_end_ms", s.vad.VADSilenceThresholdMS),
		slog.Int("sample_rate", sampleRate))

	cb := &callback{parent: s}
	dgClient, err := client.NewWSUsingCallback(s.ctx, s.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		s.logger.Error("deepgram_client_create_error",
			slog.String("error", err.Error()),
			slog.String("session_id", s.vad.SessionID))
		return errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}
	s.dgClient = dgClient

	if connected := s.dgClient.Connect(); !connected {
		s.logger.Error("deepgram_connect_failed",
			slog.String("session_id", s.vad.SessionID))
		return errorsx.Wrap(fmt.Errorf("deepgram connection failed"), errorsx.ReasonSTTConnect)
	}

	go func() {
		if err := s.dgClient.Stream(s.pipeReader); err != nil && s.ctx.Err() == nil {
			s.logger.Error("deepgram_stream_error",
				slog.String("error", err.Error()),
				slog.String("session_id", s.vad.SessionID))
		}
	}()

	return nil
}

func (s *StreamingSTT) Close() error {
	s.logger.Info("closing deepgram connection",
		slog.String("session_id", s.vad.SessionID))
	if s.cancel != nil {
		s.cancel()
	}
	if s.pipeWriter != nil {
		_ = s.pipeWriter.Close()
	}
	if s.dgClient != nil {
		s.dgClient.Stop()
	}
	return nil
}

func (s *StreamingSTT) SendAudio(frame frames.AudioFrame) error {
	if s.pipeWriter == nil {
		return errorsx.Wrap(fmt.Errorf("not started"), errorsx.ReasonSTTSend)
	}
	_, err := s.pipeWriter.Write(frame.RawPayload())
	if err != nil {
		s.logger.Error("failed to send audio to deepgram",
			slog.String("error", err.Error()),
			slog.String("session_id", s.vad.SessionID))
		return errorsx.Wrap(err, errorsx.ReasonSTTSend)
	}
	return nil
}

func (s *StreamingSTT) Results() <-chan frames.Frame { return s.out }

// --- Callback Implementation ---

type callback struct {
	parent *StreamingSTT
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened",
		slog.String("session_id", c.parent.vad.SessionID))
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	transcript := alt.Transcript
	if transcript == "" {
		return nil
	}

	isFinal := mr.IsFinal || mr.SpeechFinal

	meta := map[string]string{
		frames.MetaSource: "stt",
	}
	if isFinal {
		meta[frames.MetaIsFinal] = "true"
	} else {
		meta[frames.MetaIsFinal] = "false"
	}

	c.parent.logger.Debug("transcript_received",
		slog.String("session_id", c.parent.vad.SessionID),
		slog.String("transcript", transcript),
		slog.Bool("is_final", isFinal))

	f := frames.NewTextFrame(c.parent.vad.SessionID, time.Now().UnixNano(), transcript, meta)
	select {
	case c.parent.out <- f:
	default:
		c.parent.logger.Warn("deepgram_out_channel_full",
			slog.String("session_id", c.parent.vad.SessionID))
	}

	if mr.SpeechFinal {
		c.emitUtteranceEnd("speech_final")
	}
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("deepgram_metadata_received",
			slog.String("session_id", c.parent.vad.SessionID),
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.logger.Debug("speech_started_event",
		slog.String("session_id", c.parent.vad.SessionID))
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.parent.logger.Info("utterance_end_event",
		slog.String("session_id", c.parent.vad.SessionID),
		slog.Int("utterance_end_ms", c.parent.vad.VADSilenceThresholdMS))
	c.emitUtteranceEnd("utterance_end")
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed",
		slog.String("session_id", c.parent.vad.SessionID))
	c.emitStop("provider_closed")
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("session_id", c.parent.vad.SessionID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.emitStop("provider_error")
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event",
		slog.String("session_id", c.parent.vad.SessionID),
		slog.String("data", string(byData)))
	return nil
}

func (c *callback) emitUtteranceEnd(reason string) {
	meta := map[string]string{
		frames.MetaSource: "stt",
		frames.MetaReason: reason,
	}
	f := frames.NewControlFrame(c.parent.vad.SessionID, time.Now().UnixNano(), frames.ControlUtteranceEnd, meta)
	select {
	case c.parent.out <- f:
	default:
		c.parent.logger.Warn("failed_to_emit_utterance_end",
			slog.String("session_id", c.parent.vad.SessionID),
			slog.String("reason", "channel_full"))
	}
}

func (c *callback) emitStop(reason string) {
	meta := map[string]string{
		frames.MetaSource: "stt",
		frames.MetaReason: reason,
	}
	f := frames.NewControlFrame(c.parent.vad.SessionID, time.Now().UnixNano(), frames.ControlStop, meta)
	select {
	case c.parent.out <- f:
	default:
	}
}

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
