// Package elevenlabs is a minimal client for the ElevenLabs text-to-speech
// API. The pipeline only needs one call: text in, audio bytes out.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ventalink/lead-voice-service/pkg/logger"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// Synthesizer is the TTS collaborator contract consumed by the synthesis
// pipeline. Implementations return provider-format audio bytes (MP3 for
// ElevenLabs) or an error on quota/auth/network failures.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Client calls the ElevenLabs TTS API.
type Client struct {
	BaseURL    string
	APIKey     string
	VoiceID    string
	ModelID    string
	HTTPClient *http.Client
}

// NewClient creates an ElevenLabs client for the given voice.
func NewClient(apiKey, voiceID string) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		APIKey:  apiKey,
		VoiceID: voiceID,
		ModelID: "eleven_multilingual_v2",
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type synthesizeRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize converts text to MP3 audio bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs api key not configured")
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:    text,
		ModelID: c.ModelID,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tts request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.BaseURL, c.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.APIKey)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("tts provider returned status %d: %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tts response: %w", err)
	}

	logger.Base().Debug("tts synthesis complete",
		zap.Int("chars", len(text)),
		zap.Int("bytes", len(audio)),
		zap.Duration("latency", time.Since(start)))
	return audio, nil
}
