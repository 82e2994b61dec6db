package handler

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/twilio/twilio-go/twiml"
	"github.com/ventalink/lead-voice-service/internal/config"
	"github.com/ventalink/lead-voice-service/internal/core/task"
	"github.com/ventalink/lead-voice-service/internal/domain"
	"github.com/ventalink/lead-voice-service/internal/prompts"
	"github.com/ventalink/lead-voice-service/internal/repository"
	"github.com/ventalink/lead-voice-service/internal/services/analysis"
	"github.com/ventalink/lead-voice-service/internal/services/call"
	"github.com/ventalink/lead-voice-service/internal/store"
	"github.com/ventalink/lead-voice-service/internal/synthesis"
	"github.com/ventalink/lead-voice-service/pkg/logger"
	"go.uber.org/zap"
)

// VoiceWebhookHandler drives the per-call state machine off the telephony
// provider's lifecycle webhooks. Every handler answers within a hard bound:
// the provider abandons the call if a webhook response stalls.
type VoiceWebhookHandler struct {
	store    *store.Store
	service  *call.Service
	analyzer *analysis.Analyzer
	pipeline *synthesis.Pipeline
	archiver repository.CallArchiver // optional, nil without a database
	verdicts *analysis.VerdictCache  // optional, nil without Redis
	cfg      *config.Config

	callsEnded atomic.Int64
}

// NewVoiceWebhookHandler creates a new voice webhook handler. archiver and
// verdicts may be nil.
func NewVoiceWebhookHandler(st *store.Store, service *call.Service, analyzer *analysis.Analyzer, pipeline *synthesis.Pipeline, archiver repository.CallArchiver, verdicts *analysis.VerdictCache, cfg *config.Config) *VoiceWebhookHandler {
	return &VoiceWebhookHandler{
		store:    st,
		service:  service,
		analyzer: analyzer,
		pipeline: pipeline,
		archiver: archiver,
		verdicts: verdicts,
		cfg:      cfg,
	}
}

// SetupVoiceRoutes sets up the telephony webhook routes.
func (h *VoiceWebhookHandler) SetupVoiceRoutes(router *mux.Router) {
	router.HandleFunc("/voice", h.HandleCallStart).Methods("POST")
	router.HandleFunc("/voice/handle_speech", h.HandleSpeechResult).Methods("POST")
	router.HandleFunc("/voice/call_ended", h.HandleCallEnded).Methods("POST")

	logger.Base().Info("voice webhook routes registered")
}

// leadIDFromRequest resolves the lead side of a webhook. Outbound calls carry
// the lead in To; on an inbound call To is our own number and the lead is the
// caller, so Direction decides which side to key on.
func (h *VoiceWebhookHandler) leadIDFromRequest(r *http.Request) string {
	to := r.FormValue("To")
	from := r.FormValue("From")

	if r.FormValue("Direction") == "inbound" && from != "" {
		return store.NormalizeLeadID(from)
	}
	if to == "" {
		to = from
	}
	return store.NormalizeLeadID(to)
}

// HandleCallStart handles the call-start webhook.
// POST /voice
func (h *VoiceWebhookHandler) HandleCallStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	leadID := h.leadIDFromRequest(r)
	callSid := r.FormValue("CallSid")

	rec := h.store.Update(leadID, func(rec *domain.ConversationRecord) {
		rec.CallStatus = domain.CallStatusInProgress
		if rec.CallSid == "" {
			rec.CallSid = callSid
		}
		if rec.Stage.Rank() < domain.StageCallInProgress.Rank() {
			rec.Stage = domain.StageCallInProgress
		}
	})

	logger.Base().Info("call started",
		zap.String("lead_id", leadID),
		zap.String("call_sid", callSid),
		zap.Bool("greeting_started", rec.Greeting.GenerationStarted))

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.GreetingWait)
	defer cancel()

	if rec.Greeting.GenerationStarted {
		h.store.WaitGreetingReady(ctx, leadID)
		if g := h.store.Get(leadID).Greeting; g.Ready && g.UsedFallback && ctx.Err() == nil {
			// Pre-generation degraded to silence; spend the remaining window
			// on a second synthesis attempt before letting the provider speak.
			h.service.EnqueueGreeting(leadID).Wait(ctx)
		}
	} else {
		// Inbound contact with no scheduled call: nothing was pre-generated,
		// so synthesize now within the same bound.
		h.service.EnqueueGreeting(leadID).Wait(ctx)
	}

	rec = h.store.Get(leadID)
	greetingText := prompts.Greeting(rec.LeadName)

	var opening twiml.Element
	if rec.Greeting.Ready && !rec.Greeting.UsedFallback && rec.Greeting.PublicURL != "" {
		opening = &twiml.VoicePlay{Url: rec.Greeting.PublicURL}
	} else {
		// Both attempts missed the window; let the provider speak.
		greetingText = prompts.GreetingFallbackUtterance
		opening = &twiml.VoiceSay{Message: greetingText, Language: h.cfg.VoiceLanguage}
	}

	h.store.AppendTranscript(leadID, domain.MessageRoleAssistant, greetingText)
	h.service.PublishEvent(r.Context(), task.EventTypeCallStarted, leadID, callSid)

	h.writeTwiML(w, h.gatherAround(opening))
}

// HandleSpeechResult handles the speech-result webhook. It turns the
// long-running LLM+TTS work into a bounded response: on timeout the lead hears
// a provider-spoken fallback instead of dead air.
// POST /voice/handle_speech
func (h *VoiceWebhookHandler) HandleSpeechResult(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	leadID := h.leadIDFromRequest(r)
	speech := r.FormValue("SpeechResult")

	if speech == "" {
		h.writeTwiML(w, h.goodbyeVerbs())
		return
	}

	h.store.AppendTranscript(leadID, domain.MessageRoleUser, speech)
	logger.Base().Info("speech received",
		zap.String("lead_id", leadID), zap.Int("chars", len(speech)))

	future := h.service.EnqueueReply(leadID)

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.ReplyTimeout)
	defer cancel()

	res, ok := future.Wait(ctx)

	var reply twiml.Element
	if !ok || res.Fallback || res.PublicURL == "" {
		if !ok {
			logger.Base().Warn("reply pipeline timed out", zap.String("lead_id", leadID))
		}
		reply = &twiml.VoiceSay{Message: prompts.FallbackUtterance, Language: h.cfg.VoiceLanguage}
	} else {
		reply = &twiml.VoicePlay{Url: res.PublicURL}
	}

	h.writeTwiML(w, h.gatherAround(reply))
}

// HandleCallEnded handles the call-end webhook: final status, post-call
// analysis, routing, archive, and an opportunistic retention sweep.
// POST /voice/call_ended
func (h *VoiceWebhookHandler) HandleCallEnded(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	leadID := h.leadIDFromRequest(r)
	duration, _ := strconv.Atoi(r.FormValue("CallDuration"))

	h.store.Update(leadID, func(rec *domain.ConversationRecord) {
		rec.CallStatus = domain.CallStatusCompleted
		rec.CallDuration = duration
	})
	h.store.AdvanceStage(leadID, domain.StageCallCompleted)

	rec := h.store.Get(leadID)
	verdict := h.analyzer.Analyze(r.Context(), rec.Transcript)
	h.store.SaveAnalysis(leadID, verdict)

	if h.verdicts != nil {
		if err := h.verdicts.Store(r.Context(), leadID, verdict); err != nil {
			logger.Base().Warn("failed to cache verdict",
				zap.String("lead_id", leadID), zap.Error(err))
		}
	}

	if verdict.InterestLevel == domain.InterestHigh ||
		verdict.InterestLevel == domain.InterestMedium ||
		verdict.HumanFollowupNeeded {
		h.store.AdvanceStage(leadID, domain.StageReadyForHuman)
	}

	logger.Base().Info("call ended",
		zap.String("lead_id", leadID),
		zap.Int("duration_seconds", duration),
		zap.String("interest_level", verdict.InterestLevel),
		zap.String("priority", verdict.Priority))

	h.archiveCall(r.Context(), leadID)

	h.service.PublishEvent(r.Context(), task.EventTypeCallEnded, leadID, rec.CallSid)
	h.service.PublishEvent(r.Context(), task.EventTypeAnalysisReady, leadID, rec.CallSid)

	if n := h.callsEnded.Add(1); h.cfg.SweepEveryNCalls > 0 && n%int64(h.cfg.SweepEveryNCalls) == 0 {
		go func() {
			removed := h.pipeline.CleanupExpired(h.cfg.AudioRetention)
			if removed > 0 {
				logger.Base().Info("retention sweep after call", zap.Int("removed", removed))
			}
		}()
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// archiveCall writes the completed call to the database, best effort. A failed
// archive must never fail the webhook ack.
func (h *VoiceWebhookHandler) archiveCall(ctx context.Context, leadID string) {
	if h.archiver == nil {
		return
	}
	rec := h.store.Get(leadID)
	endedAt := time.Now()
	startedAt := endedAt.Add(-time.Duration(rec.CallDuration) * time.Second)
	if err := h.archiver.ArchiveCall(ctx, rec, startedAt, endedAt); err != nil {
		logger.Base().Warn("failed to archive call",
			zap.String("lead_id", leadID), zap.Error(err))
	}
}

// gatherAround wraps an utterance in speech capture plus the no-speech exit:
// if the lead says nothing for the gather window, say goodbye and hang up.
func (h *VoiceWebhookHandler) gatherAround(utterance twiml.Element) []twiml.Element {
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        "/voice/handle_speech",
		Method:        "POST",
		Language:      h.cfg.VoiceLanguage,
		Timeout:       strconv.Itoa(config.DefaultGatherTimeoutSec),
		SpeechTimeout: strconv.Itoa(config.DefaultSpeechTimeoutSec),
		InnerElements: []twiml.Element{utterance},
	}
	return append([]twiml.Element{gather}, h.goodbyeVerbs()...)
}

func (h *VoiceWebhookHandler) goodbyeVerbs() []twiml.Element {
	return []twiml.Element{
		&twiml.VoiceSay{Message: prompts.GoodbyeUtterance, Language: h.cfg.VoiceLanguage},
		&twiml.VoiceHangup{},
	}
}

func (h *VoiceWebhookHandler) writeTwiML(w http.ResponseWriter, verbs []twiml.Element) {
	doc, err := twiml.Voice(verbs)
	if err != nil {
		logger.Base().Error("failed to render voice response", zap.Error(err))
		http.Error(w, "failed to render response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}
