// Package http implements the HTTP adapter: handlers, routing and
// request/response plumbing for the REST API.
package http

import (
	"net/http"

	"github.com/CivStat/MetricBoard/internal/adapter/ws"
	"github.com/CivStat/MetricBoard/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Handlers bundles all HTTP handlers and their service dependencies.
type Handlers struct {
	Metrics *service.MetricsService
	Sectors *service.SectorService
	Auth    *service.AuthService
	Hub     *ws.Hub
	Health  func() map[string]any
}

// HandleHealth reports liveness plus dependency status.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{"status": "ok"}
	if h.Health != nil {
		for k, v := range h.Health() {
			status[k] = v
		}
	}
	writeJSON(w, http.StatusOK, status)
}
