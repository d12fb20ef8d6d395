package handlers

import (
	"encoding/json"
	"net/http"

	"gaitserver/internal/domain"
	"gaitserver/internal/pipeline"
)

type estimateRequest struct {
	VideoID string  `json:"video_id"`
	FPS     float64 `json:"fps"`
}

// Estimate runs 2D pose estimation over the uploaded input video and
// stores the keypoint sequence.
func (a *App) Estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	id, ok := a.videoIDParam(w, req.VideoID)
	if !ok {
		return
	}
	fps, ok := a.fpsParam(w, req.FPS)
	if !ok {
		return
	}

	if err := a.Pipeline.Estimate(r.Context(), id, fps); err != nil {
		a.stageError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"message":  "pose estimation completed successfully",
		"video_id": id.String(),
	})
}

type analyzeRequest struct {
	VideoID string `json:"video_id"`
	Side    string `json:"side"`
}

// Analyze computes running metrics from an existing keypoint sequence.
func (a *App) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	id, ok := a.videoIDParam(w, req.VideoID)
	if !ok {
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "side must be left, right or both")
		return
	}

	if _, err := a.Pipeline.Analyze(r.Context(), id, side); err != nil {
		a.stageError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"message":  "running analysis completed successfully",
		"video_id": id.String(),
	})
}

type renderRequest struct {
	VideoID       string  `json:"video_id"`
	FPS           float64 `json:"fps"`
	CRF           *int    `json:"crf"`
	ShowKeypoints *bool   `json:"show_keypoints"`
	ShowSkeleton  *bool   `json:"show_skeleton"`
}

// RenderVideo produces the annotated output video.
func (a *App) RenderVideo(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	id, ok := a.videoIDParam(w, req.VideoID)
	if !ok {
		return
	}
	fps, ok := a.fpsParam(w, req.FPS)
	if !ok {
		return
	}

	params := pipeline.RenderParams{
		FPS:           fps,
		CRF:           22,
		ShowKeypoints: true,
		ShowSkeleton:  true,
	}
	if req.CRF != nil {
		if *req.CRF < 0 || *req.CRF > 51 {
			a.error(w, http.StatusBadRequest, "bad_request", "crf must be in [0, 51]")
			return
		}
		params.CRF = *req.CRF
	}
	if req.ShowKeypoints != nil {
		params.ShowKeypoints = *req.ShowKeypoints
	}
	if req.ShowSkeleton != nil {
		params.ShowSkeleton = *req.ShowSkeleton
	}

	if err := a.Pipeline.Render(r.Context(), id, params); err != nil {
		a.stageError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"message":  "annotated video rendered and saved successfully",
		"video_id": id.String(),
	})
}

// fpsParam validates the sampling rate, defaulting to 30. Rates below 1
// or above 120 are rejected; very low rates produce broken output with
// some codecs and very high ones only burn compute.
func (a *App) fpsParam(w http.ResponseWriter, fps float64) (float64, bool) {
	if fps == 0 {
		return 30, true
	}
	if fps < 1 || fps > 120 {
		a.error(w, http.StatusBadRequest, "bad_request", "fps must be in [1, 120]")
		return 0, false
	}
	return fps, true
}
