// Package http contains outbound HTTP adapters for third-party messaging APIs.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"time"

	"github.com/ventalink/lead-voice-service/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// WhatsAppSender sends text and template messages to leads over WhatsApp.
type WhatsAppSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendTemplate(ctx context.Context, to, templateName, language string, params []string) (string, error)
}

// WhatsAppClient handles communication with the WhatsApp Cloud API.
// Sends are throttled client-side so a burst of post-call follow-ups does not
// trip the platform's messaging limits.
type WhatsAppClient struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	HTTPClient    *nethttp.Client

	limiter *rate.Limiter
}

type whatsAppTextMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *whatsAppText    `json:"text,omitempty"`
	Template         *whatsAppTmplRef `json:"template,omitempty"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppTmplRef struct {
	Name       string              `json:"name"`
	Language   whatsAppTmplLang    `json:"language"`
	Components []whatsAppComponent `json:"components,omitempty"`
}

type whatsAppTmplLang struct {
	Code string `json:"code"`
}

type whatsAppComponent struct {
	Type       string              `json:"type"`
	Parameters []whatsAppParameter `json:"parameters"`
}

type whatsAppParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// whatsAppSendResponse is the subset of the Cloud API response we read.
type whatsAppSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// NewWhatsAppClient creates a new WhatsApp Cloud API client. messagesPerSecond
// bounds the outbound send rate; values <= 0 fall back to 10/s.
func NewWhatsAppClient(baseURL, phoneNumberID, accessToken string, messagesPerSecond float64) *WhatsAppClient {
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	if messagesPerSecond <= 0 {
		messagesPerSecond = 10
	}

	return &WhatsAppClient{
		BaseURL:       baseURL,
		PhoneNumberID: phoneNumberID,
		AccessToken:   accessToken,
		HTTPClient: &nethttp.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(messagesPerSecond), 1),
	}
}

// IsEnabled reports whether the client has credentials to send messages.
func (c *WhatsAppClient) IsEnabled() bool {
	return c.PhoneNumberID != "" && c.AccessToken != ""
}

// SendText sends a free-form text message and returns the provider message ID.
func (c *WhatsAppClient) SendText(ctx context.Context, to, body string) (string, error) {
	msg := whatsAppTextMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &whatsAppText{Body: body},
	}
	return c.send(ctx, msg)
}

// SendTemplate sends a pre-approved template message with body parameters.
func (c *WhatsAppClient) SendTemplate(ctx context.Context, to, templateName, language string, params []string) (string, error) {
	tmpl := &whatsAppTmplRef{
		Name:     templateName,
		Language: whatsAppTmplLang{Code: language},
	}
	if len(params) > 0 {
		component := whatsAppComponent{Type: "body"}
		for _, p := range params {
			component.Parameters = append(component.Parameters, whatsAppParameter{Type: "text", Text: p})
		}
		tmpl.Components = []whatsAppComponent{component}
	}

	msg := whatsAppTextMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         tmpl,
	}
	return c.send(ctx, msg)
}

func (c *WhatsAppClient) send(ctx context.Context, msg whatsAppTextMessage) (string, error) {
	if !c.IsEnabled() {
		return "", fmt.Errorf("WhatsApp client not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait aborted: %w", err)
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %v", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID)
	req, err := nethttp.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %v", err)
	}

	var response whatsAppSendResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return "", fmt.Errorf("failed to decode response (status %d): %v", resp.StatusCode, err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("WhatsApp API error: code=%d, type=%s, message=%s",
			response.Error.Code, response.Error.Type, response.Error.Message)
	}
	if len(response.Messages) == 0 {
		return "", fmt.Errorf("WhatsApp API returned no message ID (status %d)", resp.StatusCode)
	}

	messageID := response.Messages[0].ID
	logger.Base().Info("WhatsApp message sent",
		zap.String("to", msg.To), zap.String("message_id", messageID))
	return messageID, nil
}
