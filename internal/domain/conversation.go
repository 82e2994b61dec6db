package domain

import (
	"time"
)

// Stage is the discrete phase of a lead's conversation lifecycle. Stage
// transitions move forward within a call lifecycle; only explicit
// reschedule/cancel actions move a lead back.
type Stage string

const (
	StageInitial           Stage = "initial"
	StageCallInProgress    Stage = "call_in_progress"
	StageCallCompleted     Stage = "call_completed"
	StageReadyForHuman     Stage = "ready_for_human"
	StageClosedByHuman     Stage = "closed_by_human"
	StageNotInterested     Stage = "not_interested"
	StageWaitingDocuments  Stage = "waiting_documents"
	StageDocumentsVerified Stage = "documents_verified"
)

// stageRank orders stages for monotonic advancement checks. Terminal and
// human-driven stages share the top ranks so the webhook flow never
// downgrades them.
var stageRank = map[Stage]int{
	StageInitial:           0,
	StageCallInProgress:    1,
	StageCallCompleted:     2,
	StageReadyForHuman:     3,
	StageWaitingDocuments:  4,
	StageDocumentsVerified: 5,
	StageNotInterested:     6,
	StageClosedByHuman:     7,
}

// Rank returns the ordering rank of a stage. Unknown stages rank lowest.
func (s Stage) Rank() int {
	return stageRank[s]
}

// CallStatus tracks the telephony leg of the current call attempt.
type CallStatus string

const (
	CallStatusPending    CallStatus = "pending"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
)

// MessageRole identifies the speaker of a transcript entry.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// GreetingState tracks the speculative greeting-synthesis task that starts
// before the outbound call connects. Ready is set at most once per call
// attempt and never reverts to false.
type GreetingState struct {
	AudioPath         string `json:"audio_path,omitempty"`
	PublicURL         string `json:"public_url,omitempty"`
	GenerationStarted bool   `json:"generation_started"`
	Ready             bool   `json:"ready"`
	UsedFallback      bool   `json:"used_fallback"`
}

// TranscriptEntry is one turn of the call transcript. Entries are append-only
// during a call and never reordered.
type TranscriptEntry struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Analysis is the structured post-call verdict. Written once per completed
// call; absent until then.
type Analysis struct {
	InterestLevel       string   `json:"interest_level"`
	Objections          []string `json:"objections,omitempty"`
	KeyPoints           []string `json:"key_points,omitempty"`
	NextAction          string   `json:"next_action"`
	HumanFollowupNeeded bool     `json:"human_followup_needed"`
	Priority            string   `json:"priority"`
	Summary             string   `json:"summary"`
}

// Interest levels and priorities the analyzer may produce.
const (
	InterestUnknown = "unknown"
	InterestLow     = "low"
	InterestMedium  = "medium"
	InterestHigh    = "high"

	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// DefaultAnalysis is the safe verdict returned when the LLM reply cannot be
// parsed. The call-end handler must always have a usable result to route on.
func DefaultAnalysis() *Analysis {
	return &Analysis{
		InterestLevel:       InterestUnknown,
		NextAction:          "unknown",
		HumanFollowupNeeded: false,
		Priority:            PriorityNormal,
		Summary:             "analysis unavailable",
	}
}

// ConversationRecord is the per-lead state document, keyed by phone number.
// Created lazily on first reference; closure is a stage value, never deletion.
type ConversationRecord struct {
	LeadID          string            `json:"lead_id"`
	LeadName        string            `json:"lead_name,omitempty"`
	Stage           Stage             `json:"stage"`
	CallSid         string            `json:"call_sid,omitempty"`
	CallStatus      CallStatus        `json:"call_status"`
	CallDuration    int               `json:"call_duration,omitempty"`
	Greeting        GreetingState     `json:"greeting"`
	Transcript      []TranscriptEntry `json:"transcript"`
	Analysis        *Analysis         `json:"analysis,omitempty"`
	MessagesSent    int               `json:"messages_sent"`
	LastInteraction time.Time         `json:"last_interaction"`
	CreatedAt       time.Time         `json:"created_at"`
}

// NewConversationRecord returns the default record for a lead that has not
// been contacted yet.
func NewConversationRecord(leadID string) *ConversationRecord {
	now := time.Now()
	return &ConversationRecord{
		LeadID:          leadID,
		Stage:           StageInitial,
		CallStatus:      CallStatusPending,
		Transcript:      []TranscriptEntry{},
		LastInteraction: now,
		CreatedAt:       now,
	}
}

// Clone returns a deep copy so callers can read records without holding the
// store's per-lead lock.
func (r *ConversationRecord) Clone() *ConversationRecord {
	cp := *r
	cp.Transcript = make([]TranscriptEntry, len(r.Transcript))
	copy(cp.Transcript, r.Transcript)
	if r.Analysis != nil {
		a := *r.Analysis
		a.Objections = append([]string(nil), r.Analysis.Objections...)
		a.KeyPoints = append([]string(nil), r.Analysis.KeyPoints...)
		cp.Analysis = &a
	}
	return &cp
}
