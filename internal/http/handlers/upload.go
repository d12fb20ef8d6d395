package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"gaitserver/internal/domain"
)

// allowedVideoTypes maps accepted upload extensions to the content type
// stored with the artifact.
var allowedVideoTypes = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// UploadVideo accepts a multipart video upload, mints a fresh video
// identifier and streams the file into storage as the input artifact.
// The body is never buffered whole; the part reader feeds storage
// directly.
func (a *App) UploadVideo(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "expected a multipart upload")
		return
	}

	part, err := mr.NextPart()
	for err == nil && part.FormName() != "file" {
		part, err = mr.NextPart()
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart field \"file\" is required")
		return
	}
	defer part.Close()

	filename := part.FileName()
	if filename == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "uploaded file must have a filename")
		return
	}
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := allowedVideoTypes[ext]
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("file must be a video (mp4, avi, mov or webm), got %q", ext))
		return
	}

	id := domain.NewVideoID()
	key := domain.ArtifactKey(id, domain.InputVideo)
	if err := a.Store.Put(r.Context(), key, part, -1, contentType); err != nil {
		a.stageError(w, r, err)
		return
	}

	a.Log.Info().Str("video_id", id.String()).Str("filename", filename).Msg("video uploaded")
	a.json(w, http.StatusOK, map[string]string{
		"message":    "video uploaded successfully",
		"video_uuid": id.String(),
	})
}
