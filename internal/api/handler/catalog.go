package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cityair/cityair/internal/api/models"
	"github.com/cityair/cityair/internal/api/response"
)

// Reloader re-reads the catalog from its store.
type Reloader interface {
	Reload() (int, error)
}

// CatalogHandler handles catalog maintenance endpoints.
type CatalogHandler struct {
	catalog Reloader
	logger  zerolog.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalog Reloader, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// Reload handles POST /api/catalog/reload.
func (h *CatalogHandler) Reload(w http.ResponseWriter, r *http.Request) {
	count, err := h.catalog.Reload()
	if err != nil {
		h.logger.Error().Err(err).Msg("catalog reload failed")
		response.InternalError(w, r, "Failed to reload the city catalog.")
		return
	}

	h.logger.Info().Int("records", count).Msg("catalog reloaded")
	response.JSON(w, r, http.StatusOK, models.ReloadResponse{Success: true, Count: count})
}
