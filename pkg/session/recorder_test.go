package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubTranscoder struct {
	mu     sync.Mutex
	inputs [][]byte
	err    error
}

func (s *stubTranscoder) Transcode(ctx context.Context, raw []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.inputs = append(s.inputs, raw)
	return append([]byte("flac:"), raw...), nil
}

func (s *stubTranscoder) Format() string { return "flac" }

func waitDone(t *testing.T, r *Recorder) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("recorder never finished")
	}
}

func TestRecorderPersistsTranscodedAudio(t *testing.T) {
	store := &captureStore{}
	tc := &stubTranscoder{}
	r := NewRecorder(store, tc, nil)

	rec := validRecord()
	r.Record(rec, []byte("raw-pcm"))
	waitDone(t, r)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.audio) != 1 {
		t.Fatalf("audio uploads = %d, want 1", len(store.audio))
	}
	if !bytes.Equal(store.audio[0], []byte("flac:raw-pcm")) {
		t.Fatalf("uploaded audio = %q", store.audio[0])
	}
	if len(store.records) != 1 {
		t.Fatalf("session uploads = %d, want 1", len(store.records))
	}
	if store.records[0].AudioURL == "" {
		t.Fatalf("record missing audio url")
	}
}

func TestRecorderFallsBackToRawOnTranscodeFailure(t *testing.T) {
	store := &captureStore{}
	tc := &stubTranscoder{err: errors.New("ffmpeg missing")}
	r := NewRecorder(store, tc, nil)

	r.Record(validRecord(), []byte("raw-pcm"))
	waitDone(t, r)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.audio) != 1 || !bytes.Equal(store.audio[0], []byte("raw-pcm")) {
		t.Fatalf("expected raw fallback upload, got %q", store.audio)
	}
}

func TestRecorderSkipsEmptyCapture(t *testing.T) {
	store := &captureStore{}
	r := NewRecorder(store, &stubTranscoder{}, nil)

	r.Record(validRecord(), nil)
	waitDone(t, r)

	if store.sessionCount() != 0 {
		t.Fatalf("empty capture must skip persistence")
	}
}

func TestRecorderSwallowsUploadFailure(t *testing.T) {
	store := &captureStore{audioErr: errors.New("gridfs down")}
	r := NewRecorder(store, nil, nil)

	r.Record(validRecord(), []byte("raw"))
	waitDone(t, r)

	// Audio failed but the session document is still written, without a url.
	rec := store.lastRecord(t)
	if rec.AudioURL != "" {
		t.Fatalf("audio url set despite failed upload")
	}
}

func TestRecorderRecordIsIdempotent(t *testing.T) {
	store := &captureStore{}
	r := NewRecorder(store, nil, nil)

	r.Record(validRecord(), []byte("raw"))
	r.Record(validRecord(), []byte("raw-again"))
	waitDone(t, r)
	time.Sleep(10 * time.Millisecond)

	if got := store.sessionCount(); got != 1 {
		t.Fatalf("session uploads = %d, want 1", got)
	}
}
