package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	httpadapter "github.com/ventalink/lead-voice-service/internal/adapters/http"
	"github.com/ventalink/lead-voice-service/internal/domain"
	"github.com/ventalink/lead-voice-service/internal/repository"
	"github.com/ventalink/lead-voice-service/internal/services/analysis"
	"github.com/ventalink/lead-voice-service/internal/services/call"
	"github.com/ventalink/lead-voice-service/internal/store"
	"github.com/ventalink/lead-voice-service/pkg/logger"
	"go.uber.org/zap"
)

// LeadHandler exposes the operator-facing API: schedule calls, send WhatsApp
// outreach, and inspect lead state.
type LeadHandler struct {
	store    *store.Store
	service  *call.Service
	whatsapp httpadapter.WhatsAppSender // optional, nil without credentials
	verdicts *analysis.VerdictCache     // optional, nil without Redis
	history  repository.CallHistory     // optional, nil without a database
}

// NewLeadHandler creates a new lead handler. whatsapp, verdicts, and history
// may be nil.
func NewLeadHandler(st *store.Store, service *call.Service, whatsapp httpadapter.WhatsAppSender, verdicts *analysis.VerdictCache, history repository.CallHistory) *LeadHandler {
	return &LeadHandler{
		store:    st,
		service:  service,
		whatsapp: whatsapp,
		verdicts: verdicts,
		history:  history,
	}
}

// SetupLeadRoutes sets up the lead API routes.
func (h *LeadHandler) SetupLeadRoutes(router *mux.Router) {
	router.HandleFunc("/calls/schedule", h.HandleScheduleCall).Methods("POST")
	router.HandleFunc("/leads/message", h.HandleSendMessage).Methods("POST")
	router.HandleFunc("/leads/{phone}/analysis", h.HandleGetAnalysis).Methods("GET")
	router.HandleFunc("/leads/{phone}/calls", h.HandleGetCallHistory).Methods("GET")
	router.HandleFunc("/leads/{phone}", h.HandleGetLead).Methods("GET")

	logger.Base().Info("lead api routes registered")
}

// ScheduleCallRequest is the request to place an outbound call to a lead.
type ScheduleCallRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// ScheduleCallResponse confirms a placed call.
type ScheduleCallResponse struct {
	LeadID  string `json:"lead_id"`
	CallSid string `json:"call_sid"`
	Status  string `json:"status"`
}

// SendMessageRequest is the request to send a WhatsApp message to a lead.
type SendMessageRequest struct {
	Phone    string   `json:"phone"`
	Message  string   `json:"message,omitempty"`
	Template string   `json:"template,omitempty"`
	Language string   `json:"language,omitempty"`
	Params   []string `json:"params,omitempty"`
}

// SendMessageResponse confirms a sent message.
type SendMessageResponse struct {
	LeadID    string `json:"lead_id"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// readJSON reads and decodes a JSON request body.
func (h *LeadHandler) readJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *LeadHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleScheduleCall places an outbound call to a lead.
// POST /calls/schedule
func (h *LeadHandler) HandleScheduleCall(w http.ResponseWriter, r *http.Request) {
	var req ScheduleCallRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	if req.Phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}

	if h.verdicts != nil {
		// The previous call's verdict is stale the moment a new call starts.
		if err := h.verdicts.Invalidate(r.Context(), store.NormalizeLeadID(req.Phone)); err != nil {
			logger.Base().Warn("failed to invalidate cached verdict",
				zap.String("phone", req.Phone), zap.Error(err))
		}
	}

	callSid, err := h.service.ScheduleCall(r.Context(), req.Phone, req.Name)
	if err != nil {
		logger.Base().Error("failed to schedule call",
			zap.String("phone", req.Phone), zap.Error(err))
		http.Error(w, "failed to place call", http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, ScheduleCallResponse{
		LeadID:  store.NormalizeLeadID(req.Phone),
		CallSid: callSid,
		Status:  "scheduled",
	})
}

// HandleSendMessage sends a WhatsApp message to a lead. A template name takes
// precedence over free-form text.
// POST /leads/message
func (h *LeadHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	if req.Phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}
	if req.Message == "" && req.Template == "" {
		http.Error(w, "message or template is required", http.StatusBadRequest)
		return
	}
	if h.whatsapp == nil {
		http.Error(w, "WhatsApp messaging not configured", http.StatusServiceUnavailable)
		return
	}

	leadID := store.NormalizeLeadID(req.Phone)

	var messageID string
	var err error
	if req.Template != "" {
		language := req.Language
		if language == "" {
			language = "es_MX"
		}
		messageID, err = h.whatsapp.SendTemplate(r.Context(), leadID, req.Template, language, req.Params)
	} else {
		messageID, err = h.whatsapp.SendText(r.Context(), leadID, req.Message)
	}
	if err != nil {
		logger.Base().Error("failed to send WhatsApp message",
			zap.String("lead_id", leadID), zap.Error(err))
		http.Error(w, "failed to send message", http.StatusBadGateway)
		return
	}

	h.store.Update(leadID, func(rec *domain.ConversationRecord) {
		rec.MessagesSent++
	})

	h.writeJSON(w, http.StatusOK, SendMessageResponse{
		LeadID:    leadID,
		MessageID: messageID,
		Status:    "sent",
	})
}

// HandleGetLead returns the lead's conversation record.
// GET /leads/{phone}
func (h *LeadHandler) HandleGetLead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec := h.store.Get(vars["phone"])
	h.writeJSON(w, http.StatusOK, rec)
}

// HandleGetAnalysis returns the lead's latest post-call verdict, from the
// Redis cache when available, otherwise from the conversation record.
// GET /leads/{phone}/analysis
func (h *LeadHandler) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	phone := mux.Vars(r)["phone"]
	leadID := store.NormalizeLeadID(phone)

	if h.verdicts != nil {
		if verdict, err := h.verdicts.Get(r.Context(), leadID); err != nil {
			logger.Base().Warn("failed to read cached verdict",
				zap.String("lead_id", leadID), zap.Error(err))
		} else if verdict != nil {
			h.writeJSON(w, http.StatusOK, verdict)
			return
		}
	}

	rec := h.store.Get(phone)
	if rec.Analysis == nil {
		http.Error(w, "no analysis for lead", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, rec.Analysis)
}

// HandleGetCallHistory lists the lead's archived calls, newest first.
// GET /leads/{phone}/calls
func (h *LeadHandler) HandleGetCallHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "call archive not configured", http.StatusServiceUnavailable)
		return
	}

	leadID := store.NormalizeLeadID(mux.Vars(r)["phone"])
	records, err := h.history.FindByLeadID(r.Context(), leadID)
	if err != nil {
		logger.Base().Error("failed to load call history",
			zap.String("lead_id", leadID), zap.Error(err))
		http.Error(w, "failed to load call history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*domain.CallRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}
