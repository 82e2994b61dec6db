package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/ventalink/lead-voice-service/pkg/logger"
)

// AudioHandler serves synthesized audio artifacts to the telephony provider.
type AudioHandler struct {
	audioDir string
}

// NewAudioHandler creates a new audio file handler.
func NewAudioHandler(audioDir string) *AudioHandler {
	return &AudioHandler{audioDir: audioDir}
}

// SetupAudioRoutes sets up the audio serving route.
func (h *AudioHandler) SetupAudioRoutes(router *mux.Router) {
	router.HandleFunc("/audio/{file}", h.ServeAudio).Methods("GET")

	logger.Base().Info("audio routes registered")
}

// ServeAudio serves one audio artifact. Artifact names are generated UUIDs;
// anything with a path separator or a non-wav extension is rejected.
// GET /audio/{file}
func (h *AudioHandler) ServeAudio(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["file"]

	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		http.Error(w, "invalid file name", http.StatusBadRequest)
		return
	}
	if filepath.Ext(name) != ".wav" {
		http.Error(w, "unsupported file type", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, filepath.Join(h.audioDir, name))
}
