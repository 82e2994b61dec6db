package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	httpadapter "github.com/ventalink/lead-voice-service/internal/adapters/http"
	"github.com/ventalink/lead-voice-service/internal/domain"
	"github.com/ventalink/lead-voice-service/internal/repository"
)

type fakeWhatsApp struct {
	sentTexts     int
	sentTemplates int
	lastTo        string
	lastBody      string
	err           error
}

func (f *fakeWhatsApp) SendText(ctx context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sentTexts++
	f.lastTo = to
	f.lastBody = body
	return fmt.Sprintf("wamid.%d", f.sentTexts), nil
}

func (f *fakeWhatsApp) SendTemplate(ctx context.Context, to, templateName, language string, params []string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sentTemplates++
	f.lastTo = to
	return fmt.Sprintf("wamid.tmpl.%d", f.sentTemplates), nil
}

type fakeCallHistory struct {
	records []*domain.CallRecord
	err     error
	lastID  string
}

func (f *fakeCallHistory) FindByLeadID(ctx context.Context, leadID string) ([]*domain.CallRecord, error) {
	f.lastID = leadID
	return f.records, f.err
}

func newLeadRouter(t *testing.T, env *testEnv, wa *fakeWhatsApp) *mux.Router {
	t.Helper()
	return newLeadRouterWithHistory(t, env, wa, nil)
}

func newLeadRouterWithHistory(t *testing.T, env *testEnv, wa *fakeWhatsApp, history *fakeCallHistory) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	var sender httpadapter.WhatsAppSender
	if wa != nil {
		sender = wa
	}
	var hist repository.CallHistory
	if history != nil {
		hist = history
	}
	NewLeadHandler(env.store, env.handler.service, sender, nil, hist).SetupLeadRoutes(router)
	return router
}

func postJSON(t *testing.T, router *mux.Router, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestScheduleCallEndpoint(t *testing.T) {
	env := newTestEnv(t, &cannedChat{})
	router := newLeadRouter(t, env, nil)

	w := postJSON(t, router, "/calls/schedule", ScheduleCallRequest{
		Phone: "+573000000001",
		Name:  "Ana Test",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp ScheduleCallResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "573000000001", resp.LeadID)
	assert.Equal(t, "CA123", resp.CallSid)
	assert.Equal(t, "scheduled", resp.Status)

	rec := env.store.Get("+573000000001")
	assert.Equal(t, domain.StageCallInProgress, rec.Stage)
	assert.True(t, rec.Greeting.GenerationStarted)
}

func TestScheduleCallEndpointRequiresPhone(t *testing.T) {
	env := newTestEnv(t, &cannedChat{})
	router := newLeadRouter(t, env, nil)

	w := postJSON(t, router, "/calls/schedule", ScheduleCallRequest{Name: "Ana"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessageEndpoint(t *testing.T) {
	env := newTestEnv(t, &cannedChat{})
	wa := &fakeWhatsApp{}
	router := newLeadRouter(t, env, wa)

	w := postJSON(t, router, "/leads/message", SendMessageRequest{
		Phone:   "+573000000001",
		Message: "hola, te escribo del equipo comercial",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, wa.sentTexts)
	assert.Equal(t, "573000000001", wa.lastTo)

	rec := env.store.Get("+573000000001")
	assert.Equal(t, 1, rec.MessagesSent)
}

func TestSendMessageEndpointTemplateTakesPrecedence(t *testing.T) {
	env := newTestEnv(t, &cannedChat{})
	wa := &fakeWhatsApp{}
	router := newLeadRouter(t, env, wa)

	w := postJSON(t, router, "/leads/message", SendMessageRequest{
		Phone:    "+573000000001",
		Message:  "texto libre",
		Template: "seguimiento_llamada",
		Params:   []string{"Ana"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, wa.sentTemplates)
	assert.Equal(t, 0, wa.sentTexts)
}

func TestSendMessageEndpointWithoutWhatsApp(t *testing.T) {
	env := newTestEnv(t, &cannedChat{})
	router := newLeadRouter(t, env, nil)

	w := postJSON(t, router, "/leads/message", SendMessageRequest{
		Phone:   "+573000000001",
		Message: "hola",
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetLeadEndpoint(t *testing.T) {
	env := newTestEnv(t, &cannedChat{})
	router := newLeadRouter(t, env, nil)

	env.store.Update("+573000000001", func(r *domain.ConversationRecord) {
		r.LeadName = "Ana Test"
	})

	req := httptest.NewRequest(http.MethodGet, "/leads/573000000001", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var rec domain.ConversationRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "Ana Test", rec.LeadName)
	assert.Equal(t, domain.StageInitial, rec.Stage)
}

func TestGetAnalysisEndpointFromRecord(t *testing.T) {
	env := newTestEnv(t, &cannedChat{})
	router := newLeadRouter(t, env, nil)

	env.store.SaveAnalysis("+573000000001", &domain.Analysis{
		InterestLevel: domain.InterestHigh,
		Priority:      domain.PriorityHigh,
		Summary:       "muy interesado",
	})

	req := httptest.NewRequest(http.MethodGet, "/leads/573000000001/analysis", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var a domain.Analysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, domain.InterestHigh, a.InterestLevel)
}

func TestGetAnalysisEndpointNotFound(t *testing.T) {
	env := newTestEnv(t, &cannedChat{})
	router := newLeadRouter(t, env, nil)

	req := httptest.NewRequest(http.MethodGet, "/leads/573000000001/analysis", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCallHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t, &cannedChat{})
	history := &fakeCallHistory{records: []*domain.CallRecord{
		{ID: "r1", LeadID: "573000000001", CallSid: "CA123", DurationSeconds: 300},
	}}
	router := newLeadRouterWithHistory(t, env, nil, history)

	req := httptest.NewRequest(http.MethodGet, "/leads/+573000000001/calls", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "573000000001", history.lastID)

	var records []*domain.CallRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "CA123", records[0].CallSid)
}

func TestGetCallHistoryEndpointWithoutArchive(t *testing.T) {
	env := newTestEnv(t, &cannedChat{})
	router := newLeadRouter(t, env, nil)

	req := httptest.NewRequest(http.MethodGet, "/leads/573000000001/calls", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
