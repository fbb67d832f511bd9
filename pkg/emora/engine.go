// Package emora assembles the conversation engine: vendor providers, the
// turn-taking session loop, persistence, and the websocket surface.
package emora

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emora-ai/emora/pkg/adapters/stt"
	"github.com/emora-ai/emora/pkg/adapters/tts"
	"github.com/emora-ai/emora/pkg/audio"
	"github.com/emora-ai/emora/pkg/frames"
	"github.com/emora-ai/emora/pkg/logging"
	"github.com/emora-ai/emora/pkg/metrics"
	"github.com/emora-ai/emora/pkg/session"
	mongostore "github.com/emora-ai/emora/pkg/store/mongo"
	"github.com/emora-ai/emora/pkg/transports"
	"github.com/emora-ai/emora/pkg/transports/ws"
)

// Engine hosts the process-wide collaborators, created once and shared by
// every session.
type Engine struct {
	cfg Config
	log *slog.Logger

	sttFactory stt.Factory
	ttsFactory tts.Factory
	analyzers  Analyzers

	store      *mongostore.Store
	transcoder session.Transcoder
	observer   metrics.Observer

	ctx    context.Context
	cancel context.CancelFunc

	server      *http.Server
	metricsFile *os.File

	mu       sync.Mutex
	sessions sync.WaitGroup
}

func NewEngine(cfg Config) (*Engine, error) {
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log := logging.NewComponentLogger(slog.Default(), "engine")

	sttFactory, err := BuildSTTFactory(cfg.Vendors.STT)
	if err != nil {
		return nil, err
	}
	ttsFactory, err := BuildTTSFactory(cfg.Vendors.TTS)
	if err != nil {
		return nil, err
	}
	analyzers, err := BuildAnalyzers(cfg.Vendors.LLM)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		log:        log,
		sttFactory: sttFactory,
		ttsFactory: ttsFactory,
		analyzers:  analyzers,
		observer:   metrics.NoopObserver{},
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	conv := cfg.Conversation
	if cfg.Storage.Provider == "mongo" {
		ext := "pcm"
		if cfg.Storage.Transcode {
			ext = "flac"
		}
		store, err := mongostore.New(mongostore.Config{
			URI:        cfg.Storage.URI,
			Database:   cfg.Storage.Database,
			Collection: cfg.Storage.Collection,
			Bucket:     cfg.Storage.Bucket,
			FileExt:    ext,
		})
		if err != nil {
			return nil, err
		}
		e.store = store
		if cfg.Storage.Transcode {
			ff := audio.NewFFmpeg(conv.SampleRate, conv.Channels)
			if cfg.Storage.FFmpegPath != "" {
				ff.Binary = cfg.Storage.FFmpegPath
			}
			e.transcoder = ff
		} else {
			e.transcoder = audio.PassThrough{}
		}
	}

	if cfg.Observability.MetricsPath != "" {
		f, err := os.OpenFile(cfg.Observability.MetricsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open metrics sink: %w", err)
		}
		e.metricsFile = f
		e.observer = metrics.NewJSONLObserver(f)
	}
	return e, nil
}

// HandleConn runs one complete dialogue session over an accepted connection
// and returns when it has finished. Persistence may still be in flight.
func (e *Engine) HandleConn(conn transports.Conn) {
	e.sessions.Add(1)
	defer e.sessions.Done()

	id := uuid.NewString()
	log := logging.NewComponentLogger(slog.Default(), "session")

	var store session.Store
	if e.store != nil {
		store = e.store
	}
	recorder := session.NewRecorder(store, e.transcoder, log)

	sess := session.New(id, e.cfg.SessionConfig(), session.Deps{
		Conn:        conn,
		STT:         e.sttFactory,
		TTS:         e.ttsFactory,
		Analyzer:    e.analyzers.Emotion,
		Generator:   e.analyzers.Question,
		Recommender: e.analyzers.Recommender,
		Recorder:    recorder,
		Logger:      log,
	})
	sess.AddPhaseListener(metrics.NewPhaseRecorder(id, e.observer))

	started := time.Now()
	metrics.RecordSystemFrame(e.observer,
		frames.NewSystemFrame(id, started.UnixNano(), metrics.EventSessionStart, nil), 0)

	sess.Run(e.ctx)

	metrics.RecordSystemFrame(e.observer,
		frames.NewSystemFrame(id, time.Now().UnixNano(), metrics.EventSessionEnd, nil),
		float64(time.Since(started).Milliseconds()))
}

// Handler returns the HTTP surface: the session websocket plus a health
// endpoint.
func (e *Engine) Handler() http.Handler {
	conv := e.cfg.Conversation
	wsHandler := ws.NewHandler(ws.Config{
		SampleRate:     conv.SampleRate,
		Channels:       conv.Channels,
		AllowedOrigins: e.cfg.Server.AllowedOrigins,
	}, e.HandleConn)

	mux := http.NewServeMux()
	mux.Handle(e.cfg.Server.Path, wsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if e.store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := e.store.Ping(ctx); err != nil {
				http.Error(w, "storage unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe blocks serving the engine's HTTP surface until Drain is
// called.
func (e *Engine) ListenAndServe() error {
	e.mu.Lock()
	e.server = &http.Server{
		Addr:              e.cfg.Server.Addr,
		Handler:           e.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := e.server
	e.mu.Unlock()

	e.log.Info("listening", "addr", e.cfg.Server.Addr, "path", e.cfg.Server.Path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Drain stops accepting connections, cancels in-flight sessions, and waits
// for them to unwind.
func (e *Engine) Drain() error {
	e.mu.Lock()
	srv := e.server
	e.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			e.log.Warn("server_shutdown_failed", "error", err)
		}
	}
	e.cancel()
	e.sessions.Wait()

	if e.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.Close(ctx); err != nil {
			e.log.Warn("store_close_failed", "error", err)
		}
	}
	if e.metricsFile != nil {
		_ = e.metricsFile.Close()
	}
	return nil
}
