package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/ventalink/lead-voice-service/internal/config"
	"github.com/ventalink/lead-voice-service/internal/handler"
	"github.com/ventalink/lead-voice-service/pkg/logger"
	"go.uber.org/zap"
)

// Server represents the lead voice service server
type Server struct {
	config         *config.Config
	router         *mux.Router
	handlerManager *handler.HandlerManager
}

// NewServer creates a new lead voice service server
func NewServer(cfg *config.Config) *Server {
	// Initialize zap logger and redirect stdlib log to it
	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		logger.Base().Error("Failed to initialize zap logger, falling back to std log")
	}

	router := mux.NewRouter()

	// Initialize handler manager - it will create all services internally
	handlerManager, err := handler.NewHandlerManager(cfg)
	if err != nil {
		logger.Base().Error("Failed to initialize handler manager", zap.Error(err))
		return nil
	}

	handlerManager.SetupAllRoutes(router)

	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
	}
}

// Start starts the HTTP server. Write timeout leaves headroom over the reply
// pipeline bound so a slow LLM turn is cut by the pipeline timeout, not the
// server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.ReplyTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Base().Info("Starting server", zap.String("addr", addr))
	return server.ListenAndServe()
}

// LoadConfigFromEnv loads the service configuration from environment
func LoadConfigFromEnv() *config.Config {
	return &config.Config{
		Port:          getEnvOrDefault("PORT", "8080"),
		PublicBaseURL: getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),
		DataDir:       getEnvOrDefault("DATA_DIR", "data"),
		AudioDir:      getEnvOrDefault("AUDIO_DIR", "data/audio"),

		VoiceLanguage: getEnvOrDefault("VOICE_LANGUAGE", config.DefaultVoiceLanguage),

		SynthWorkers:     getEnvAsIntOrDefault("SYNTH_WORKERS", config.DefaultSynthWorkers),
		GreetingWait:     getEnvAsDurationOrDefault("GREETING_WAIT", config.DefaultGreetingWait),
		ReplyTimeout:     getEnvAsDurationOrDefault("REPLY_TIMEOUT", config.DefaultReplyTimeout),
		AudioRetention:   getEnvAsDurationOrDefault("AUDIO_RETENTION", config.DefaultAudioRetention),
		SweepEveryNCalls: getEnvAsIntOrDefault("SWEEP_EVERY_N_CALLS", config.DefaultSweepEveryNCalls),

		// Twilio configuration
		TwilioAccountSID: getEnvOrDefault("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnvOrDefault("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnvOrDefault("TWILIO_FROM_NUMBER", ""),

		// ElevenLabs configuration
		ElevenLabsAPIKey:  getEnvOrDefault("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnvOrDefault("ELEVENLABS_VOICE_ID", ""),

		// OpenAI configuration
		OpenAIAPIKey:  getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),

		// WhatsApp Cloud API configuration
		WhatsAppToken:   getEnvOrDefault("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneID: getEnvOrDefault("WHATSAPP_PHONE_ID", ""),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", ""),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsIntOrDefault("REDIS_DB", 0),

		// Postgres configuration
		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),
	}
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault gets environment variable as duration or returns default
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func main() {
	// Load .env file for local development if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	cfg := LoadConfigFromEnv()

	server := NewServer(cfg)
	if server == nil {
		log.Fatal("Failed to create server")
	}
	defer logger.Sync()

	logger.L().Infow("Server initialized successfully",
		"port", cfg.Port,
		"public_base_url", cfg.PublicBaseURL)

	if err := server.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
