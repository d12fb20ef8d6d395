package httpapi

import (
	"net/http"

	"gaitserver/internal/http/handlers"
	appmw "gaitserver/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rs/zerolog"
)

func NewRouter(app *handlers.App, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		appmw.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		appmw.Logger(log),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	// Storage surface: upload, result retrieval, cleanup.
	r.Route("/storage/v1", func(r chi.Router) {
		r.Post("/video/upload", app.UploadVideo)
		r.Get("/video/{video_id}/download", app.DownloadVideo)
		r.Get("/analysis/{video_id}/download", app.DownloadAnalysis)
		r.Delete("/artifacts/{video_id}/delete", app.DeleteArtifacts)
	})

	// ML surface: the three compute stages.
	r.Route("/ml/v1", func(r chi.Router) {
		r.Post("/estimate", app.Estimate)
		r.Post("/analyze", app.Analyze)
		r.Post("/render-video", app.RenderVideo)
	})

	return r
}
