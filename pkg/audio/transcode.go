// Package audio converts raw capture audio into a compressed container
// before upload.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/emora-ai/emora/pkg/errorsx"
)

// FFmpeg transcodes signed 16-bit little-endian PCM into FLAC by shelling
// out to the ffmpeg binary.
type FFmpeg struct {
	// Binary overrides the ffmpeg path; defaults to "ffmpeg" on PATH.
	Binary     string
	SampleRate int
	Channels   int
}

func NewFFmpeg(sampleRate, channels int) *FFmpeg {
	if sampleRate == 0 {
		sampleRate = 16000
	}
	if channels == 0 {
		channels = 1
	}
	return &FFmpeg{Binary: "ffmpeg", SampleRate: sampleRate, Channels: channels}
}

func (f *FFmpeg) Format() string { return "flac" }

func (f *FFmpeg) Transcode(ctx context.Context, raw []byte) ([]byte, error) {
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"-i", "pipe:0",
		"-f", "flac",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(raw)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("ffmpeg: %w: %s", err, errBuf.String()), errorsx.ReasonTranscode)
	}
	if out.Len() == 0 {
		return nil, errorsx.Wrap(fmt.Errorf("ffmpeg produced no output"), errorsx.ReasonTranscode)
	}
	return out.Bytes(), nil
}

// PassThrough returns the capture unchanged, for deployments without ffmpeg.
type PassThrough struct{}

func (PassThrough) Format() string { return "pcm" }

func (PassThrough) Transcode(ctx context.Context, raw []byte) ([]byte, error) {
	return raw, nil
}
