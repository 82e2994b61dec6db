package config

import "time"

// Defaults for the voice loop timing. The greeting wait bounds how long the
// call-start webhook blocks on speculative synthesis; the reply timeout bounds
// the combined LLM+TTS future so the speech webhook always answers inside the
// telephony provider's response window.
const (
	DefaultSynthWorkers     = 4
	DefaultGreetingWait     = 5 * time.Second
	DefaultReplyTimeout     = 45 * time.Second
	DefaultAudioRetention   = 24 * time.Hour
	DefaultSweepEveryNCalls = 10
	DefaultVoiceLanguage    = "es-MX"
	DefaultSpeechTimeoutSec = 5
	DefaultGatherTimeoutSec = 6
)

// Config holds the full service configuration, loaded from the environment in
// cmd/server.
type Config struct {
	Port          string
	PublicBaseURL string
	DataDir       string
	AudioDir      string

	VoiceLanguage string

	SynthWorkers     int
	GreetingWait     time.Duration
	ReplyTimeout     time.Duration
	AudioRetention   time.Duration
	SweepEveryNCalls int

	// Twilio telephony collaborator
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// ElevenLabs TTS collaborator
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	// OpenAI-compatible chat collaborator
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// WhatsApp Cloud API collaborator (optional)
	WhatsAppToken   string
	WhatsAppPhoneID string

	// Redis event bus (optional)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Postgres call archive (optional)
	DatabaseURL string
}
