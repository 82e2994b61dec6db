// Package store holds the per-lead conversation state behind a lock-sharded
// in-memory map with a JSON file tier underneath. The store is the only
// shared mutable resource between the webhook handlers and the synthesis
// workers; every read-mutate-write for a lead runs under that lead's lock.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ventalink/lead-voice-service/internal/domain"
	"github.com/ventalink/lead-voice-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	conversationsDir = "conversations"
	transcriptsDir   = "transcripts"
	analysisDir      = "analysis"
)

// Store is the conversation state store. get never fails: a default record is
// created lazily on first reference, so a webhook for an unknown lead still
// observes a consistent view.
type Store struct {
	dataDir string

	mu    sync.Mutex
	leads map[string]*leadEntry
}

type leadEntry struct {
	mu  sync.Mutex
	rec *domain.ConversationRecord

	// greetingReady is closed exactly once, when greeting.ready flips true.
	// Webhook handlers wait on it instead of polling the record.
	greetingReady chan struct{}
}

// NewStore creates the store and its on-disk layout.
func NewStore(dataDir string) (*Store, error) {
	for _, sub := range []string{conversationsDir, transcriptsDir, analysisDir} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", sub, err)
		}
	}
	return &Store{
		dataDir: dataDir,
		leads:   make(map[string]*leadEntry),
	}, nil
}

// Get returns a copy of the lead's record, creating the default record if the
// lead has never been seen.
func (s *Store) Get(leadID string) *domain.ConversationRecord {
	e := s.entry(leadID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone()
}

// Update applies a mutation under the lead's lock, stamps lastInteraction,
// and persists the record. Persistence failures are logged and non-fatal: a
// lost durability write must never abort an active call.
func (s *Store) Update(leadID string, mutate func(*domain.ConversationRecord)) *domain.ConversationRecord {
	e := s.entry(leadID)
	e.mu.Lock()
	defer e.mu.Unlock()

	wasReady := e.rec.Greeting.Ready
	mutate(e.rec)
	e.rec.LastInteraction = time.Now()

	// greeting.ready is latched: once true it never reverts, and the first
	// transition resolves the readiness channel for any waiting handler.
	if wasReady {
		e.rec.Greeting.Ready = true
	} else if e.rec.Greeting.Ready {
		close(e.greetingReady)
	}

	s.persistRecord(e.rec)
	return e.rec.Clone()
}

// AppendTranscript appends one turn in arrival order and mirrors the full
// transcript to its own JSON document.
func (s *Store) AppendTranscript(leadID, role, text string) *domain.ConversationRecord {
	rec := s.Update(leadID, func(r *domain.ConversationRecord) {
		r.Transcript = append(r.Transcript, domain.TranscriptEntry{
			Role:      role,
			Text:      text,
			Timestamp: time.Now(),
		})
	})
	s.writeJSON(filepath.Join(s.dataDir, transcriptsDir, s.leadFile(leadID)), rec.Transcript)
	return rec
}

// MarkGreetingReady latches the greeting artifact onto the record. Safe to
// call more than once: the first real artifact wins, and a later real
// artifact may replace an earlier fallback, never the other way around.
func (s *Store) MarkGreetingReady(leadID, audioPath, publicURL string, usedFallback bool) {
	s.Update(leadID, func(r *domain.ConversationRecord) {
		if r.Greeting.Ready && !r.Greeting.UsedFallback {
			return
		}
		if r.Greeting.Ready && usedFallback {
			return
		}
		r.Greeting.AudioPath = audioPath
		r.Greeting.PublicURL = publicURL
		r.Greeting.UsedFallback = usedFallback
		r.Greeting.Ready = true
	})
}

// WaitGreetingReady blocks until the lead's greeting is ready or the context
// expires. Returns true when the greeting became ready in time.
func (s *Store) WaitGreetingReady(ctx context.Context, leadID string) bool {
	e := s.entry(leadID)

	// ResetForCall swaps the channel under the lead lock; take a snapshot
	// under the same lock before blocking on it.
	e.mu.Lock()
	ready := e.greetingReady
	e.mu.Unlock()

	select {
	case <-ready:
		return true
	case <-ctx.Done():
		return false
	}
}

// AdvanceStage moves the lead's stage forward only; a lower-ranked stage is
// ignored so concurrent writers cannot regress the lifecycle.
func (s *Store) AdvanceStage(leadID string, stage domain.Stage) *domain.ConversationRecord {
	return s.Update(leadID, func(r *domain.ConversationRecord) {
		if stage.Rank() > r.Stage.Rank() {
			r.Stage = stage
		}
	})
}

// ResetForCall re-arms the record for a new call attempt. This is the one
// explicit non-monotonic transition (reschedule), owned by the scheduler.
func (s *Store) ResetForCall(leadID, leadName string) *domain.ConversationRecord {
	e := s.entry(leadID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.Greeting.Ready {
		// Previous attempt finished; a fresh channel tracks the new one.
		e.greetingReady = make(chan struct{})
	}
	if leadName != "" {
		e.rec.LeadName = leadName
	}
	e.rec.Stage = domain.StageCallInProgress
	e.rec.CallStatus = domain.CallStatusInProgress
	e.rec.CallSid = ""
	e.rec.CallDuration = 0
	e.rec.Transcript = []domain.TranscriptEntry{}
	e.rec.Analysis = nil
	e.rec.Greeting = domain.GreetingState{GenerationStarted: true}
	e.rec.LastInteraction = time.Now()

	s.persistRecord(e.rec)
	return e.rec.Clone()
}

// SaveAnalysis records the post-call verdict and mirrors it to its own JSON
// document.
func (s *Store) SaveAnalysis(leadID string, a *domain.Analysis) *domain.ConversationRecord {
	rec := s.Update(leadID, func(r *domain.ConversationRecord) {
		r.Analysis = a
	})
	s.writeJSON(filepath.Join(s.dataDir, analysisDir, s.leadFile(leadID)), a)
	return rec
}

// entry returns the lead's shard, loading it from disk or creating the
// default record on first access. Shards are keyed by the normalized number
// so "+57 300 000 0001" and "573000000001" resolve to the same lead.
func (s *Store) entry(leadID string) *leadEntry {
	key := NormalizeLeadID(leadID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.leads[key]; ok {
		return e
	}

	rec := s.loadRecord(leadID)
	e := &leadEntry{
		rec:           rec,
		greetingReady: make(chan struct{}),
	}
	if rec.Greeting.Ready {
		close(e.greetingReady)
	}
	s.leads[key] = e
	return e
}

// NormalizeLeadID canonicalizes a phone number to its digit string, trimming
// the "+" prefix, spaces, and separators.
func NormalizeLeadID(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if digits == "" {
		return "unknown"
	}
	return digits
}

func (s *Store) loadRecord(leadID string) *domain.ConversationRecord {
	path := filepath.Join(s.dataDir, conversationsDir, s.leadFile(leadID))
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.NewConversationRecord(leadID)
	}

	var rec domain.ConversationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Base().Warn("corrupt conversation record, starting fresh",
			zap.String("lead_id", leadID), zap.Error(err))
		return domain.NewConversationRecord(leadID)
	}
	if rec.Transcript == nil {
		rec.Transcript = []domain.TranscriptEntry{}
	}
	rec.LeadID = leadID
	return &rec
}

// persistRecord is called with the lead lock held.
func (s *Store) persistRecord(rec *domain.ConversationRecord) {
	s.writeJSON(filepath.Join(s.dataDir, conversationsDir, s.leadFile(rec.LeadID)), rec)
}

// writeJSON writes through a temp file and renames into place so readers and
// the retention sweeper never observe a partially written document.
func (s *Store) writeJSON(path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Base().Error("failed to marshal state document", zap.String("path", path), zap.Error(err))
		return
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Base().Error("failed to write state document", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.Base().Error("failed to rename state document", zap.String("path", path), zap.Error(err))
	}
}

// leadFile maps a lead id to its on-disk document name.
func (s *Store) leadFile(leadID string) string {
	return NormalizeLeadID(leadID) + ".json"
}
