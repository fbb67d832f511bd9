// Package ws implements the browser client transport: one websocket per
// dialogue session, binary frames in (microphone audio), JSON events out.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emora-ai/emora/pkg/frames"
	"github.com/emora-ai/emora/pkg/logging"
	"github.com/emora-ai/emora/pkg/transports"
)

type Config struct {
	SampleRate     int      `mapstructure:"sample_rate"`
	Channels       int      `mapstructure:"channels"`
	ReadBuffer     int      `mapstructure:"read_buffer"`
	WriteBuffer    int      `mapstructure:"write_buffer"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.ReadBuffer == 0 {
		c.ReadBuffer = 4096
	}
	if c.WriteBuffer == 0 {
		c.WriteBuffer = 4096
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// SessionFunc runs one dialogue session over an accepted connection and
// returns when the session is finished.
type SessionFunc func(conn transports.Conn)

// Handler upgrades HTTP requests and hands each connection to the session
// callback.
type Handler struct {
	cfg      Config
	upgrader websocket.Upgrader
	session  SessionFunc
	logger   *slog.Logger
}

func NewHandler(cfg Config, session SessionFunc) *Handler {
	cfg = cfg.withDefaults()
	h := &Handler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBuffer,
			WriteBufferSize: cfg.WriteBuffer,
		},
		session: session,
		logger:  logging.NewComponentLogger(slog.Default(), "ws_transport"),
	}
	h.upgrader.CheckOrigin = h.checkOrigin
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws_upgrade_failed", slog.String("error", err.Error()))
		return
	}
	conn := newConn(ws, h.cfg, h.logger)
	defer conn.Close()
	h.logger.Info("client_connected", slog.String("remote", r.RemoteAddr))
	h.session(conn)
	h.logger.Info("client_session_done", slog.String("remote", r.RemoteAddr))
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.AllowAnyOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

type inboundControl struct {
	Type string `json:"type"`
}

// Conn adapts a gorilla websocket to transports.Conn. A single writer
// goroutine owns all outbound writes, which gorilla requires.
type Conn struct {
	ws     *websocket.Conn
	cfg    Config
	recvCh chan frames.Frame
	sendCh chan transports.Envelope
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newConn(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	c := &Conn{
		ws:     ws,
		cfg:    cfg,
		recvCh: make(chan frames.Frame, 512),
		sendCh: make(chan transports.Envelope, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *Conn) Recv() <-chan frames.Frame { return c.recvCh }

func (c *Conn) Send(env transports.Envelope) error {
	select {
	case <-c.done:
		return transports.ErrClosed
	case c.sendCh <- env:
		return nil
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
	return nil
}

// readLoop demultiplexes inbound websocket messages: binary frames become
// audio, text frames are parsed for control messages. The recv channel is
// closed on disconnect so consumers observe a sentinel instead of hanging.
func (c *Conn) readLoop() {
	defer close(c.recvCh)
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Info("client_disconnected", slog.String("error", err.Error()))
			}
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			af := frames.NewAudioFrameFromPool("", time.Now().UnixNano(), data,
				c.cfg.SampleRate, c.cfg.Channels, map[string]string{frames.MetaSource: "client"})
			select {
			case c.recvCh <- af:
			case <-c.done:
				return
			}
		case websocket.TextMessage:
			var ctrl inboundControl
			if err := json.Unmarshal(data, &ctrl); err != nil {
				continue
			}
			if ctrl.Type != transports.InboundPlaybackFinished {
				continue
			}
			cf := frames.NewControlFrame("", time.Now().UnixNano(),
				frames.ControlPlaybackFinished, map[string]string{frames.MetaSource: "client"})
			select {
			case c.recvCh <- cf:
			case <-c.done:
				return
			}
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.sendCh:
			if err := c.ws.WriteJSON(env); err != nil {
				c.logger.Warn("ws_write_failed",
					slog.String("type", env.Type),
					slog.String("error", err.Error()))
				c.Close()
				return
			}
		}
	}
}

var _ transports.Conn = (*Conn)(nil)
