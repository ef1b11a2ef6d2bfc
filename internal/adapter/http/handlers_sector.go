package http

import (
	"net/http"

	"github.com/CivStat/MetricBoard/internal/domain/sector"
	"github.com/CivStat/MetricBoard/internal/middleware"
)

// CreateSector handles POST /api/v1/sectors (admin only)
func (h *Handlers) CreateSector(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[sector.CreateRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	u := middleware.UserFromContext(r.Context())
	sec, err := h.Sectors.Create(r.Context(), u, &req)
	if err != nil {
		writeDomainError(w, err, "failed to create sector")
		return
	}
	writeJSON(w, http.StatusCreated, sec)
}

// GetSector handles GET /api/v1/sectors/{id}
func (h *Handlers) GetSector(w http.ResponseWriter, r *http.Request) {
	sec, err := h.Sectors.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "sector not found")
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

// ListSectors handles GET /api/v1/sectors
func (h *Handlers) ListSectors(w http.ResponseWriter, r *http.Request) {
	sectors, err := h.Sectors.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if sectors == nil {
		sectors = []sector.Sector{}
	}
	writeJSON(w, http.StatusOK, sectors)
}
