// Package twilio wraps the Twilio REST client for outbound call placement.
package twilio

import (
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/ventalink/lead-voice-service/pkg/logger"
	"go.uber.org/zap"
)

// CallPlacer is the telephony collaborator contract: place an outbound call
// with a webhook callback and get the provider call id back. statusCallbackURL
// receives the completed-call status webhook. Fails with a provider error on
// invalid numbers or auth problems.
type CallPlacer interface {
	PlaceCall(to, webhookURL, statusCallbackURL string) (string, error)
}

// CallService places outbound calls through the Twilio API.
type CallService struct {
	client     *twilio.RestClient
	fromNumber string
	enabled    bool
}

// NewCallService creates the Twilio call service. With empty credentials the
// service is disabled and PlaceCall returns an error, which keeps local
// development without a Twilio account possible.
func NewCallService(accountSID, authToken, fromNumber string) *CallService {
	if accountSID == "" || authToken == "" {
		logger.Base().Warn("Twilio credentials not provided, outbound calling disabled")
		return &CallService{enabled: false}
	}

	return &CallService{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		fromNumber: fromNumber,
		enabled:    true,
	}
}

// PlaceCall starts an outbound call to the lead. webhookURL is hit by Twilio
// when the call connects; statusCallbackURL receives the completed-call
// status event, without which the post-call flow would never run.
func (s *CallService) PlaceCall(to, webhookURL, statusCallbackURL string) (string, error) {
	if !s.enabled {
		return "", fmt.Errorf("twilio call service is disabled")
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(s.fromNumber)
	params.SetUrl(webhookURL)
	if statusCallbackURL != "" {
		params.SetStatusCallback(statusCallbackURL)
		params.SetStatusCallbackEvent([]string{"completed"})
		params.SetStatusCallbackMethod("POST")
	}

	resp, err := s.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("failed to place call: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("call created without sid")
	}

	logger.Base().Info("outbound call placed",
		zap.String("to", to),
		zap.String("call_sid", *resp.Sid))
	return *resp.Sid, nil
}

// IsEnabled reports whether a Twilio account is configured.
func (s *CallService) IsEnabled() bool {
	return s.enabled
}
