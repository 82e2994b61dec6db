// Package synthesis converts reply text into telephony-ready audio artifacts.
// All synthesis and AI-reply work runs on a fixed-size worker pool so it never
// competes unboundedly with the webhook handlers for CPU and network.
package synthesis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ventalink/lead-voice-service/pkg/elevenlabs"
	"github.com/ventalink/lead-voice-service/pkg/logger"
	"go.uber.org/zap"
)

// Result is the outcome of a synthesis attempt. Fallback marks a degraded
// artifact (silence) or, when Path is empty, that the caller should use the
// provider's native speech instead of playback.
type Result struct {
	Path      string
	PublicURL string
	Fallback  bool
}

// Task is a unit of pooled work. Workers run tasks with a background context:
// a waiter that times out abandons the future, but the task itself completes
// and its artifact is reclaimed by the retention sweep.
type Task func(ctx context.Context) Result

// Future resolves with the outcome of a pooled task.
type Future struct {
	ch chan Result
}

// Wait blocks until the task finishes or ctx expires. The second return is
// false on timeout; the task keeps running in the background.
func (f *Future) Wait(ctx context.Context) (Result, bool) {
	select {
	case res := <-f.ch:
		return res, true
	case <-ctx.Done():
		return Result{Fallback: true}, false
	}
}

// Pipeline is the audio synthesis worker pool.
type Pipeline struct {
	tts        elevenlabs.Synthesizer
	transcoder Transcoder
	audioDir   string
	publicBase string

	tasks  chan taskItem
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sweepTicker *time.Ticker
}

type taskItem struct {
	task   Task
	future *Future
}

// NewPipeline creates the pipeline and starts its workers. publicBase is the
// externally resolvable prefix under which audioDir is served.
func NewPipeline(tts elevenlabs.Synthesizer, transcoder Transcoder, audioDir, publicBase string, workers int) (*Pipeline, error) {
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	if workers <= 0 {
		workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		tts:        tts,
		transcoder: transcoder,
		audioDir:   audioDir,
		publicBase: strings.TrimSuffix(publicBase, "/"),
		tasks:      make(chan taskItem, workers*4),
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Base().Info("synthesis pipeline started", zap.Int("workers", workers))
	return p, nil
}

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case item := <-p.tasks:
			res := item.task(p.ctx)
			item.future.ch <- res
		case <-p.ctx.Done():
			return
		}
	}
}

// Enqueue submits a task to the pool and returns its future. The future
// channel is buffered so an abandoned task never wedges a worker. Submission
// never blocks: a saturated queue resolves the future immediately as a
// fallback, so a webhook goroutine is only ever bounded by Future.Wait.
func (p *Pipeline) Enqueue(task Task) *Future {
	f := &Future{ch: make(chan Result, 1)}
	if p.ctx.Err() != nil {
		f.ch <- Result{Fallback: true}
		return f
	}
	select {
	case p.tasks <- taskItem{task: task, future: f}:
	default:
		logger.Base().Warn("synthesis pool saturated, task rejected")
		f.ch <- Result{Fallback: true}
	}
	return f
}

// SynthesizeAsync runs the synthesis chain on the pool, fire-and-forget, and
// invokes onDone with the outcome. Used for speculative greeting generation.
func (p *Pipeline) SynthesizeAsync(text string, onDone func(Result)) {
	p.Enqueue(func(ctx context.Context) Result {
		res := p.Synthesize(ctx, text)
		if onDone != nil {
			onDone(res)
		}
		return res
	})
}

// Synthesize runs the full chain: normalize text, TTS, transcode to mono
// 8 kHz PCM WAV with loudness normalization, write-and-rename into the audio
// directory. Every failure degrades to a silent artifact rather than an
// error, so downstream state can always be marked ready.
func (p *Pipeline) Synthesize(ctx context.Context, text string) Result {
	text = normalizeText(text)
	if text == "" {
		return p.fallbackArtifact()
	}

	raw, err := p.tts.Synthesize(ctx, text)
	if err != nil {
		logger.Base().Warn("tts synthesis failed, using silence fallback", zap.Error(err))
		return p.fallbackArtifact()
	}

	wav, err := p.transcoder.ToTelephonyWAV(ctx, raw)
	if err != nil {
		logger.Base().Warn("audio transcode failed, using silence fallback", zap.Error(err))
		return p.fallbackArtifact()
	}

	path, url, err := p.writeArtifact(wav)
	if err != nil {
		logger.Base().Error("failed to write audio artifact", zap.Error(err))
		return Result{Fallback: true}
	}
	return Result{Path: path, PublicURL: url}
}

// fallbackArtifact produces a short silent WAV so the call leg still receives
// playable audio.
func (p *Pipeline) fallbackArtifact() Result {
	path, url, err := p.writeArtifact(silentWAV(2 * time.Second))
	if err != nil {
		logger.Base().Error("failed to write fallback artifact", zap.Error(err))
		return Result{Fallback: true}
	}
	return Result{Path: path, PublicURL: url, Fallback: true}
}

// writeArtifact writes audio bytes under a generated name, through a temp
// file renamed into place. A concurrent retention sweep can therefore never
// observe a partially written artifact that is also referenced.
func (p *Pipeline) writeArtifact(wav []byte) (string, string, error) {
	name := uuid.New().String() + ".wav"
	path := filepath.Join(p.audioDir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, wav, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", "", fmt.Errorf("failed to finalize artifact: %w", err)
	}

	return path, p.publicBase + "/" + name, nil
}

// CleanupExpired removes artifacts older than maxAge. Idempotent and safe to
// run concurrently with writers and with itself: already-deleted files are
// not errors.
func (p *Pipeline) CleanupExpired(maxAge time.Duration) int {
	entries, err := os.ReadDir(p.audioDir)
	if err != nil {
		logger.Base().Warn("retention sweep could not read audio directory", zap.Error(err))
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(p.audioDir, entry.Name())); err == nil {
			removed++
		} else if !os.IsNotExist(err) {
			logger.Base().Warn("retention sweep failed to remove artifact",
				zap.String("name", entry.Name()), zap.Error(err))
		}
	}

	if removed > 0 {
		logger.Base().Info("retention sweep removed expired artifacts", zap.Int("count", removed))
	}
	return removed
}

// StartSweeper runs CleanupExpired on a fixed interval until Close.
func (p *Pipeline) StartSweeper(interval, maxAge time.Duration) {
	p.sweepTicker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-p.sweepTicker.C:
				p.CleanupExpired(maxAge)
			case <-p.ctx.Done():
				return
			}
		}
	}()
	logger.Base().Info("retention sweeper started",
		zap.Duration("interval", interval), zap.Duration("max_age", maxAge))
}

// Close stops the workers and the sweeper. Queued tasks are dropped.
func (p *Pipeline) Close() {
	p.cancel()
	if p.sweepTicker != nil {
		p.sweepTicker.Stop()
	}
	p.wg.Wait()
}

// normalizeText collapses interior whitespace and trims the ends.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
