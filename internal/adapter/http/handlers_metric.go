package http

import (
	"io"
	"net/http"

	"github.com/CivStat/MetricBoard/internal/domain/metric"
	"github.com/CivStat/MetricBoard/internal/domain/table"
	"github.com/CivStat/MetricBoard/internal/middleware"
)

// CreateMetric handles POST /api/v1/sectors/{id}/metrics
func (h *Handlers) CreateMetric(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[metric.CreateRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	u := middleware.UserFromContext(r.Context())
	m, err := h.Metrics.Create(r.Context(), u, urlParam(r, "id"), &req)
	if err != nil {
		writeDomainError(w, err, "sector not found")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMetrics handles GET /api/v1/sectors/{id}/metrics
func (h *Handlers) ListMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.Metrics.ListBySector(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "sector not found")
		return
	}
	if metrics == nil {
		metrics = []metric.Metric{}
	}
	writeJSON(w, http.StatusOK, metrics)
}

// GetMetric handles GET /api/v1/metrics/{id}
func (h *Handlers) GetMetric(w http.ResponseWriter, r *http.Request) {
	m, err := h.Metrics.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "metric table not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ApplyOperation handles POST /api/v1/metrics/{id}/operations
//
// The body is a tagged operation object, e.g.
//
//	{"op": "set_cell_value", "column": "Budget", "month": "March", "value": 120.5}
func (h *Handlers) ApplyOperation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	op, err := table.DecodeOperation(body)
	if err != nil {
		writeDomainError(w, err, "invalid operation")
		return
	}

	u := middleware.UserFromContext(r.Context())
	m, err := h.Metrics.ApplyOperation(r.Context(), u, urlParam(r, "id"), op)
	if err != nil {
		writeDomainError(w, err, "metric table not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetTotals handles GET /api/v1/metrics/{id}/totals
func (h *Handlers) GetTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Metrics.Totals(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "metric table not found")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// SubmitMetric handles POST /api/v1/metrics/{id}/submit
func (h *Handlers) SubmitMetric(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	m, err := h.Metrics.Submit(r.Context(), u, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "metric table not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UnsubmitMetric handles POST /api/v1/metrics/{id}/unsubmit
func (h *Handlers) UnsubmitMetric(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	m, err := h.Metrics.Unsubmit(r.Context(), u, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "metric table not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMetric handles DELETE /api/v1/metrics/{id}
func (h *Handlers) DeleteMetric(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if err := h.Metrics.Delete(r.Context(), u, urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "metric table not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
