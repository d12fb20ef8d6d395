package handlers

import (
	"net/http"
)

// Health reports process liveness. Storage and the inference sidecar are
// deliberately not probed here; a degraded dependency surfaces on the
// stage endpoints, not on the health check.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "service": "gaitserver"})
}
