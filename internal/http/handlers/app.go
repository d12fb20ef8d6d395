package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"gaitserver/internal/domain"
	"gaitserver/internal/pipeline"
	"gaitserver/internal/storage"
)

// App bundles the collaborators every handler needs.
type App struct {
	Pipeline *pipeline.Pipeline
	Store    storage.Store
	Log      zerolog.Logger
}

func NewApp(p *pipeline.Pipeline, store storage.Store, log zerolog.Logger) *App {
	return &App{Pipeline: p, Store: store, Log: log}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, map[string]string{"error": kind, "message": msg})
}

// stageError maps the pipeline failure taxonomy onto stable status
// classes and message templates, independent of the storage backend.
func (a *App) stageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.Log.Debug().Err(err).Str("path", r.URL.Path).Msg("artifact missing")
		a.error(w, http.StatusNotFound, "not_found", "required artifact not found")
	case errors.Is(err, domain.ErrValidation):
		a.Log.Debug().Err(err).Str("path", r.URL.Path).Msg("invalid input")
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrBusy):
		a.error(w, http.StatusConflict, "busy", "another stage is already running for this video")
	case errors.Is(err, domain.ErrSerialization):
		a.Log.Error().Err(err).Str("path", r.URL.Path).Msg("corrupted artifact")
		a.error(w, http.StatusInternalServerError, "corrupted_artifact", "stored results are corrupted or unreadable")
	case errors.Is(err, domain.ErrStorageUnavailable):
		a.Log.Error().Err(err).Str("path", r.URL.Path).Msg("storage unavailable")
		a.error(w, http.StatusServiceUnavailable, "storage_unavailable", "object storage is unreachable")
	case errors.Is(err, domain.ErrCompute):
		a.Log.Error().Err(err).Str("path", r.URL.Path).Msg("stage compute failed")
		a.error(w, http.StatusInternalServerError, "compute_failed", "processing failed")
	default:
		a.Log.Error().Err(err).Str("path", r.URL.Path).Msg("unclassified failure")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// videoIDParam parses and validates the video id from a URL parameter or
// request body value.
func (a *App) videoIDParam(w http.ResponseWriter, raw string) (domain.VideoID, bool) {
	id, err := domain.ParseVideoID(raw)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "video_id must be a UUID")
		return "", false
	}
	return id, true
}
