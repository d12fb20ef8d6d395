package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DownloadAnalysis returns the decoded running analysis as JSON.
func (a *App) DownloadAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := a.videoIDParam(w, chi.URLParam(r, "video_id"))
	if !ok {
		return
	}
	result, err := a.Pipeline.FetchAnalysis(r.Context(), id)
	if err != nil {
		a.stageError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, result)
}

// DownloadVideo hands out a time-limited link to the annotated output
// video. The transfer itself goes straight from object storage to the
// client; no video bytes pass through this process.
func (a *App) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := a.videoIDParam(w, chi.URLParam(r, "video_id"))
	if !ok {
		return
	}
	u, err := a.Pipeline.DownloadLink(r.Context(), id)
	if err != nil {
		a.stageError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"url": u.String()})
}

// DeleteArtifacts removes every artifact for a video. Idempotent: a
// second call on the same id succeeds with nothing left to delete.
func (a *App) DeleteArtifacts(w http.ResponseWriter, r *http.Request) {
	id, ok := a.videoIDParam(w, chi.URLParam(r, "video_id"))
	if !ok {
		return
	}
	if err := a.Pipeline.DeleteArtifacts(r.Context(), id); err != nil {
		a.stageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
