package domain

import (
	"time"
)

// CallRecord is the archived row for a completed call. The JSON files under
// the data directory stay authoritative for live state; this table exists for
// reporting and CRM joins.
type CallRecord struct {
	ID                  string    `json:"id" gorm:"column:id;primaryKey"`
	LeadID              string    `json:"lead_id" gorm:"column:lead_id;index"`
	LeadName            string    `json:"lead_name" gorm:"column:lead_name"`
	CallSid             string    `json:"call_sid" gorm:"column:call_sid;unique"`
	Stage               string    `json:"stage" gorm:"column:stage"`
	DurationSeconds     int       `json:"duration_seconds" gorm:"column:duration_seconds"`
	InterestLevel       string    `json:"interest_level" gorm:"column:interest_level"`
	Priority            string    `json:"priority" gorm:"column:priority"`
	HumanFollowupNeeded bool      `json:"human_followup_needed" gorm:"column:human_followup_needed"`
	Summary             string    `json:"summary" gorm:"column:summary"`
	StartedAt           time.Time `json:"started_at" gorm:"column:started_at"`
	EndedAt             time.Time `json:"ended_at" gorm:"column:ended_at"`
	CreatedAt           time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

// CallMessage is one archived transcript turn belonging to a CallRecord.
type CallMessage struct {
	ID           string    `json:"id" gorm:"column:id;primaryKey"`
	CallRecordID string    `json:"call_record_id" gorm:"column:call_record_id;index"`
	Role         string    `json:"role" gorm:"column:role"`
	Content      string    `json:"content" gorm:"column:content"`
	SpokenAt     time.Time `json:"spoken_at" gorm:"column:spoken_at"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
}

func (CallMessage) TableName() string {
	return "call_messages"
}
