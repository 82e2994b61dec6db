package synthesis

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSynthesizer struct {
	audio []byte
	err   error
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return s.audio, s.err
}

type stubTranscoder struct {
	err error
}

func (t *stubTranscoder) ToTelephonyWAV(ctx context.Context, audio []byte) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	return audio, nil
}

func newTestPipeline(t *testing.T, tts *stubSynthesizer, tc *stubTranscoder) *Pipeline {
	t.Helper()
	p, err := NewPipeline(tts, tc, t.TempDir(), "http://example.com/audio/", 2)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestSynthesizeWritesArtifact(t *testing.T) {
	audio := []byte("fake-wav-bytes")
	p := newTestPipeline(t, &stubSynthesizer{audio: audio}, &stubTranscoder{})

	res := p.Synthesize(context.Background(), "  hola   mundo  ")

	assert.False(t, res.Fallback)
	assert.True(t, strings.HasPrefix(res.PublicURL, "http://example.com/audio/"))
	assert.True(t, strings.HasSuffix(res.Path, ".wav"))

	written, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, audio, written)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(res.Path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"))
	}
}

func TestSynthesizeFallsBackToSilenceOnTTSFailure(t *testing.T) {
	p := newTestPipeline(t, &stubSynthesizer{err: errors.New("quota exceeded")}, &stubTranscoder{})

	res := p.Synthesize(context.Background(), "hola")

	assert.True(t, res.Fallback)
	require.NotEmpty(t, res.Path, "fallback must still produce playable audio")

	written, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(written, []byte("RIFF")), "fallback artifact must be a WAV file")
}

func TestSynthesizeFallsBackOnTranscodeFailure(t *testing.T) {
	p := newTestPipeline(t, &stubSynthesizer{audio: []byte("mp3")}, &stubTranscoder{err: errors.New("malformed input")})

	res := p.Synthesize(context.Background(), "hola")

	assert.True(t, res.Fallback)
	assert.NotEmpty(t, res.Path)
}

func TestSynthesizeEmptyTextUsesFallback(t *testing.T) {
	p := newTestPipeline(t, &stubSynthesizer{audio: []byte("x")}, &stubTranscoder{})

	res := p.Synthesize(context.Background(), "   ")
	assert.True(t, res.Fallback)
}

func TestFutureWaitBoundedOnSlowTask(t *testing.T) {
	p := newTestPipeline(t, &stubSynthesizer{audio: []byte("x")}, &stubTranscoder{})

	future := p.Enqueue(func(ctx context.Context) Result {
		time.Sleep(300 * time.Millisecond)
		return Result{Path: "late"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, ok := future.Wait(ctx)

	assert.False(t, ok)
	assert.True(t, res.Fallback)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "wait must respect its bound")
}

func TestEnqueueResolvesImmediatelyWhenPoolSaturated(t *testing.T) {
	p, err := NewPipeline(&stubSynthesizer{audio: []byte("x")}, &stubTranscoder{}, t.TempDir(), "http://example.com/audio/", 1)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	release := make(chan struct{})
	defer close(release)

	// One task occupies the worker, four more fill the queue buffer.
	blocker := func(ctx context.Context) Result {
		<-release
		return Result{}
	}
	for i := 0; i < 5; i++ {
		p.Enqueue(blocker)
	}

	start := time.Now()
	future := p.Enqueue(func(ctx context.Context) Result {
		return Result{Path: "never-runs"}
	})
	assert.Less(t, time.Since(start), 200*time.Millisecond, "submission must not block on a full pool")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, ok := future.Wait(ctx)
	assert.True(t, ok, "rejected task must resolve, not time out")
	assert.True(t, res.Fallback)
	assert.Empty(t, res.Path)
}

func TestSynthesizeAsyncInvokesCallback(t *testing.T) {
	p := newTestPipeline(t, &stubSynthesizer{audio: []byte("x")}, &stubTranscoder{})

	done := make(chan Result, 1)
	p.SynthesizeAsync("hola", func(res Result) {
		done <- res
	})

	select {
	case res := <-done:
		assert.False(t, res.Fallback)
		assert.NotEmpty(t, res.PublicURL)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never invoked")
	}
}

func TestCleanupExpiredIdempotent(t *testing.T) {
	p := newTestPipeline(t, &stubSynthesizer{audio: []byte("x")}, &stubTranscoder{})

	res := p.Synthesize(context.Background(), "hola")
	require.NotEmpty(t, res.Path)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(res.Path, old, old))

	assert.Equal(t, 1, p.CleanupExpired(24*time.Hour))
	assert.Equal(t, 0, p.CleanupExpired(24*time.Hour), "second sweep must delete nothing new")

	_, err := os.Stat(res.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupExpiredKeepsFreshArtifacts(t *testing.T) {
	p := newTestPipeline(t, &stubSynthesizer{audio: []byte("x")}, &stubTranscoder{})

	res := p.Synthesize(context.Background(), "hola")
	require.NotEmpty(t, res.Path)

	assert.Equal(t, 0, p.CleanupExpired(24*time.Hour))
	_, err := os.Stat(res.Path)
	assert.NoError(t, err)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "hola mundo", normalizeText("  hola \n\t mundo "))
	assert.Equal(t, "", normalizeText("   "))
}

func TestSilentWAVHeader(t *testing.T) {
	wav := silentWAV(2 * time.Second)

	require.Greater(t, len(wav), 44)
	assert.Equal(t, []byte("RIFF"), wav[:4])
	assert.Equal(t, []byte("WAVE"), wav[8:12])
	// 2 seconds of mono 16-bit at 8 kHz.
	assert.Equal(t, 44+2*8000*2, len(wav))
}
