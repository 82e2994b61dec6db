package task

import (
	"context"
)

// EventType identifies a call-lifecycle event published on the bus.
type EventType string

const (
	EventTypeCallScheduled EventType = "call_scheduled" // Outbound call placed for a lead
	EventTypeCallStarted   EventType = "call_started"   // Telephony leg connected
	EventTypeCallEnded     EventType = "call_ended"     // Telephony leg finished
	EventTypeAnalysisReady EventType = "analysis_ready" // Post-call verdict available
)

// CallEvent is the payload published for downstream CRM consumers.
type CallEvent struct {
	Type    EventType `json:"type"`
	LeadID  string    `json:"lead_id"`
	CallSid string    `json:"call_sid,omitempty"`
	Payload []byte    `json:"payload,omitempty"` // JSON detail, event-specific
}

// Bus defines the interface for the lifecycle event bus. Consumers live in
// downstream CRM services and subscribe to the channel directly.
type Bus interface {
	Publish(ctx context.Context, event CallEvent) error
}
