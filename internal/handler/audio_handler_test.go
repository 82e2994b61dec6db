package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeAudio(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.wav"), []byte("RIFFdata"), 0o644))

	router := mux.NewRouter()
	NewAudioHandler(dir).SetupAudioRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/audio/abc.wav", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, "RIFFdata", w.Body.String())
}

func TestServeAudioRejectsTraversalAndWrongType(t *testing.T) {
	router := mux.NewRouter()
	NewAudioHandler(t.TempDir()).SetupAudioRoutes(router)

	for _, name := range []string{"..%2f..%2fetc%2fpasswd", "secret.txt", "a..b.mp3"} {
		req := httptest.NewRequest(http.MethodGet, "/audio/"+name, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusOK, w.Code, "name: %s", name)
	}
}

func TestServeAudioMissingFile(t *testing.T) {
	router := mux.NewRouter()
	NewAudioHandler(t.TempDir()).SetupAudioRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/audio/missing.wav", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
