package synthesis

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/ventalink/lead-voice-service/pkg/logger"
	"go.uber.org/zap"
)

// Telephony playback format: mono 16-bit PCM at 8 kHz.
const (
	telephonySampleRate = 8000
	transcodeTimeout    = 30 * time.Second
)

// Transcoder converts provider-format audio into the telephony WAV format.
type Transcoder interface {
	ToTelephonyWAV(ctx context.Context, audio []byte) ([]byte, error)
}

// ExecTranscoder shells out to ffmpeg, with sox as the secondary converter
// when ffmpeg fails on the input.
type ExecTranscoder struct {
	ffmpegPath string
	soxPath    string
}

// NewExecTranscoder discovers the available converter binaries. Missing
// binaries are tolerated here; conversion fails at call time and the pipeline
// degrades to its silence fallback.
func NewExecTranscoder() *ExecTranscoder {
	t := &ExecTranscoder{}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		t.ffmpegPath = path
	} else {
		logger.Base().Warn("ffmpeg not found in PATH, primary transcoder unavailable")
	}
	if path, err := exec.LookPath("sox"); err == nil {
		t.soxPath = path
	}
	return t
}

// ToTelephonyWAV converts audio bytes to mono 8 kHz 16-bit WAV with loudness
// normalization. ffmpeg first, sox second.
func (t *ExecTranscoder) ToTelephonyWAV(ctx context.Context, audio []byte) ([]byte, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio input")
	}

	wav, ffmpegErr := t.runFFmpeg(ctx, audio)
	if ffmpegErr == nil {
		return wav, nil
	}
	logger.Base().Warn("ffmpeg transcode failed, trying sox", zap.Error(ffmpegErr))

	wav, soxErr := t.runSox(ctx, audio)
	if soxErr == nil {
		return wav, nil
	}
	return nil, fmt.Errorf("all transcoders failed: ffmpeg: %v; sox: %v", ffmpegErr, soxErr)
}

func (t *ExecTranscoder) runFFmpeg(ctx context.Context, audio []byte) ([]byte, error) {
	if t.ffmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg not available")
	}

	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", telephonySampleRate),
		"-af", "loudnorm",
		"-f", "wav",
		"pipe:1")
	cmd.Stdin = bytes.NewReader(audio)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v: %s", err, stderr.String())
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}
	return out.Bytes(), nil
}

func (t *ExecTranscoder) runSox(ctx context.Context, audio []byte) ([]byte, error) {
	if t.soxPath == "" {
		return nil, fmt.Errorf("sox not available")
	}

	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	// Provider audio is MP3; sox cannot sniff the type from a pipe.
	cmd := exec.CommandContext(ctx, t.soxPath,
		"-t", "mp3", "-",
		"-r", fmt.Sprintf("%d", telephonySampleRate),
		"-c", "1",
		"-b", "16",
		"-t", "wav", "-",
		"gain", "-n")
	cmd.Stdin = bytes.NewReader(audio)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("sox failed: %v: %s", err, stderr.String())
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("sox produced no output")
	}
	return out.Bytes(), nil
}
