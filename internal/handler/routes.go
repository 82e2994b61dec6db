package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	httpadapter "github.com/ventalink/lead-voice-service/internal/adapters/http"
	"github.com/ventalink/lead-voice-service/internal/config"
	"github.com/ventalink/lead-voice-service/internal/core/task"
	"github.com/ventalink/lead-voice-service/internal/repository"
	"github.com/ventalink/lead-voice-service/internal/services/analysis"
	"github.com/ventalink/lead-voice-service/internal/services/call"
	"github.com/ventalink/lead-voice-service/internal/store"
	"github.com/ventalink/lead-voice-service/internal/synthesis"
	"github.com/ventalink/lead-voice-service/pkg/elevenlabs"
	"github.com/ventalink/lead-voice-service/pkg/llm"
	"github.com/ventalink/lead-voice-service/pkg/logger"
	"github.com/ventalink/lead-voice-service/pkg/redis"
	"github.com/ventalink/lead-voice-service/pkg/twilio"
	"go.uber.org/zap"
)

// HandlerManager manages all handlers and the services behind them. Optional
// collaborators (Redis bus, Postgres archive, WhatsApp) degrade to nil when
// unconfigured; the call flow itself never depends on them.
type HandlerManager struct {
	cfg      *config.Config
	store    *store.Store
	pipeline *synthesis.Pipeline
	service  *call.Service
	analyzer *analysis.Analyzer
	whatsapp httpadapter.WhatsAppSender
	archiver repository.CallArchiver
	history  repository.CallHistory
	verdicts *analysis.VerdictCache
	taskBus  task.Bus
}

// NewHandlerManager creates and initializes all services and handlers.
func NewHandlerManager(cfg *config.Config) (*HandlerManager, error) {
	st, err := store.NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	tts := elevenlabs.NewClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID)
	transcoder := synthesis.NewExecTranscoder()
	pipeline, err := synthesis.NewPipeline(tts, transcoder, cfg.AudioDir, cfg.PublicBaseURL+"/audio", cfg.SynthWorkers)
	if err != nil {
		return nil, err
	}
	pipeline.StartSweeper(time.Hour, cfg.AudioRetention)

	// Event bus and verdict cache are optional; the service runs standalone
	// without Redis.
	var taskBus task.Bus
	var verdicts *analysis.VerdictCache
	if cfg.RedisHost != "" {
		redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Base().Warn("failed to initialize redis service, running without event bus", zap.Error(err))
		} else {
			taskBus = task.NewRedisBus(redisSvc)
			verdicts = analysis.NewVerdictCache(redisSvc, 24*time.Hour)
			logger.Base().Info("call event bus and verdict cache initialized")
		}
	}

	// Call archive is optional; without a database completed calls live only
	// in the JSON files.
	var archiver repository.CallArchiver
	var history repository.CallHistory
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDatabaseConnection(cfg.DatabaseURL)
		if err != nil {
			logger.Base().Warn("failed to connect to database, running without call archive", zap.Error(err))
		} else if err := repository.AutoMigrate(db); err != nil {
			logger.Base().Warn("failed to migrate call archive schema", zap.Error(err))
		} else {
			callRepo := repository.NewCallRecordRepository(db)
			archiver = callRepo
			history = callRepo
			logger.Base().Info("call archive initialized")
		}
	}

	var whatsapp httpadapter.WhatsAppSender
	if wa := httpadapter.NewWhatsAppClient("", cfg.WhatsAppPhoneID, cfg.WhatsAppToken, 10); wa.IsEnabled() {
		whatsapp = wa
		logger.Base().Info("WhatsApp messaging initialized")
	} else {
		logger.Base().Info("WhatsApp credentials not provided, messaging disabled")
	}

	chat := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	placer := twilio.NewCallService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	service := call.NewService(st, pipeline, placer, chat, taskBus, cfg.PublicBaseURL)

	return &HandlerManager{
		cfg:      cfg,
		store:    st,
		pipeline: pipeline,
		service:  service,
		analyzer: analysis.NewAnalyzer(chat),
		whatsapp: whatsapp,
		archiver: archiver,
		history:  history,
		verdicts: verdicts,
		taskBus:  taskBus,
	}, nil
}

// SetupAllRoutes sets up all routes with middleware.
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(CORSMiddleware)
	router.Use(GlobalLoggingMiddleware)

	voiceHandler := NewVoiceWebhookHandler(hm.store, hm.service, hm.analyzer, hm.pipeline, hm.archiver, hm.verdicts, hm.cfg)
	voiceHandler.SetupVoiceRoutes(router)

	apiRouter := router.PathPrefix("/").Subrouter()
	apiRouter.Use(ValidationMiddleware)
	leadHandler := NewLeadHandler(hm.store, hm.service, hm.whatsapp, hm.verdicts, hm.history)
	leadHandler.SetupLeadRoutes(apiRouter)

	audioHandler := NewAudioHandler(hm.cfg.AudioDir)
	audioHandler.SetupAudioRoutes(router)

	router.HandleFunc("/health", hm.handleHealth).Methods("GET")

	logger.Base().Info("all application routes registered")
}

// GetService returns the call service.
func (hm *HandlerManager) GetService() *call.Service {
	return hm.service
}

// GetStore returns the conversation store.
func (hm *HandlerManager) GetStore() *store.Store {
	return hm.store
}

// Close stops the synthesis pool and its sweeper.
func (hm *HandlerManager) Close() {
	hm.pipeline.Close()
}

func (hm *HandlerManager) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}
