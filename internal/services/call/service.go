// Package call orchestrates outbound call placement and the per-turn AI
// reply pipeline.
package call

import (
	"context"
	"fmt"

	"github.com/ventalink/lead-voice-service/internal/core/task"
	"github.com/ventalink/lead-voice-service/internal/domain"
	"github.com/ventalink/lead-voice-service/internal/prompts"
	"github.com/ventalink/lead-voice-service/internal/store"
	"github.com/ventalink/lead-voice-service/internal/synthesis"
	"github.com/ventalink/lead-voice-service/pkg/llm"
	"github.com/ventalink/lead-voice-service/pkg/logger"
	"github.com/ventalink/lead-voice-service/pkg/twilio"
	"go.uber.org/zap"
)

// Service drives the outbound call flow: it owns the speculative greeting
// kickoff and the pooled LLM+TTS reply tasks the webhook handlers wait on.
type Service struct {
	store    *store.Store
	pipeline *synthesis.Pipeline
	placer   twilio.CallPlacer
	chat     llm.ChatClient
	eventBus task.Bus // optional, nil when Redis is not configured

	voiceWebhookURL   string
	statusCallbackURL string
}

// NewService wires the call service. eventBus may be nil.
func NewService(st *store.Store, pipeline *synthesis.Pipeline, placer twilio.CallPlacer, chat llm.ChatClient, eventBus task.Bus, publicBaseURL string) *Service {
	return &Service{
		store:             st,
		pipeline:          pipeline,
		placer:            placer,
		chat:              chat,
		eventBus:          eventBus,
		voiceWebhookURL:   publicBaseURL + "/voice",
		statusCallbackURL: publicBaseURL + "/voice/call_ended",
	}
}

// ScheduleCall initializes the lead's record, kicks off speculative greeting
// synthesis, and places the outbound call without waiting for the audio.
// Greeting synthesis failure is absorbed into the fallback flag; only call
// placement failure is surfaced to the caller.
func (s *Service) ScheduleCall(ctx context.Context, leadID, name string) (string, error) {
	rec := s.store.ResetForCall(leadID, name)
	logger.Base().Info("scheduling outbound call",
		zap.String("lead_id", rec.LeadID), zap.String("lead_name", rec.LeadName))

	greeting := prompts.Greeting(rec.LeadName)
	s.pipeline.SynthesizeAsync(greeting, func(res synthesis.Result) {
		// Fallback still marks the greeting ready: the call-start handler
		// must never wait past its bound for audio that will not come.
		s.store.MarkGreetingReady(leadID, res.Path, res.PublicURL, res.Fallback)
	})

	callSid, err := s.placer.PlaceCall(leadID, s.voiceWebhookURL, s.statusCallbackURL)
	if err != nil {
		s.store.Update(leadID, func(r *domain.ConversationRecord) {
			r.CallStatus = domain.CallStatusFailed
		})
		return "", fmt.Errorf("failed to place outbound call: %w", err)
	}

	s.store.Update(leadID, func(r *domain.ConversationRecord) {
		r.CallSid = callSid
	})
	s.publish(ctx, task.EventTypeCallScheduled, leadID, callSid)
	return callSid, nil
}

// EnqueueReply submits the combined LLM+TTS task for the lead's next reply to
// the worker pool and returns its future. The task appends the assistant turn
// to the transcript itself, so a caller that times out leaves a complete
// transcript behind once the task finishes.
func (s *Service) EnqueueReply(leadID string) *synthesis.Future {
	return s.pipeline.Enqueue(func(ctx context.Context) synthesis.Result {
		rec := s.store.Get(leadID)

		messages := make([]llm.Message, 0, len(rec.Transcript)+1)
		messages = append(messages, llm.Message{Role: "system", Content: prompts.SalesSystemPrompt(rec.LeadName)})
		for _, entry := range rec.Transcript {
			messages = append(messages, llm.Message{Role: entry.Role, Content: entry.Text})
		}

		reply, err := s.chat.Complete(ctx, messages)
		if err != nil {
			logger.Base().Warn("chat completion failed for reply",
				zap.String("lead_id", leadID), zap.Error(err))
			return synthesis.Result{Fallback: true}
		}

		s.store.AppendTranscript(leadID, domain.MessageRoleAssistant, reply)
		return s.pipeline.Synthesize(ctx, reply)
	})
}

// EnqueueGreeting submits an on-the-fly greeting synthesis to the pool. Used
// by the call-start handler as a second attempt when the speculative greeting
// missed its window.
func (s *Service) EnqueueGreeting(leadID string) *synthesis.Future {
	return s.pipeline.Enqueue(func(ctx context.Context) synthesis.Result {
		rec := s.store.Get(leadID)
		res := s.pipeline.Synthesize(ctx, prompts.Greeting(rec.LeadName))
		s.store.MarkGreetingReady(leadID, res.Path, res.PublicURL, res.Fallback)
		return res
	})
}

// PublishEvent emits a lifecycle event on the bus, if one is configured.
func (s *Service) PublishEvent(ctx context.Context, eventType task.EventType, leadID, callSid string) {
	s.publish(ctx, eventType, leadID, callSid)
}

func (s *Service) publish(ctx context.Context, eventType task.EventType, leadID, callSid string) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, task.CallEvent{
		Type:    eventType,
		LeadID:  leadID,
		CallSid: callSid,
	}); err != nil {
		logger.Base().Warn("failed to publish call event",
			zap.String("type", string(eventType)), zap.Error(err))
	}
}
