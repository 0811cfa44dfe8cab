// Package handler provides HTTP handlers for the cityair API.
package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cityair/cityair/internal/api/models"
	"github.com/cityair/cityair/internal/api/response"
	"github.com/cityair/cityair/internal/provider/resilience"
)

// CatalogSizer reports how many cities the catalog holds.
type CatalogSizer interface {
	Len() int
}

// OpsHandlerConfig holds configuration for the OpsHandler.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string

	// Catalog is reported as a subsystem. Optional.
	Catalog CatalogSizer

	// Registry supplies provider circuit state. Optional.
	Registry *resilience.Registry
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	catalog   CatalogSizer
	registry  *resilience.Registry
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		catalog:   cfg.Catalog,
		registry:  cfg.Registry,
		now:       time.Now,
	}
}

// HealthCheck handles GET /ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /ops/ready. The service is not ready while
// any provider circuit is open, since every lookup would fail.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	for _, p := range h.providers() {
		if p.Status == models.HealthStatusFail {
			response.ServiceUnavailable(w, r, fmt.Sprintf("Provider %s is unavailable.", p.Provider))
			return
		}
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /ops/status - catalog and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  h.providers(),
	}

	if h.catalog != nil {
		status.Subsystems = append(status.Subsystems, catalogStatus(h.catalog.Len()))
	}

	for _, s := range status.Subsystems {
		status.Status = worst(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		status.Status = worst(status.Status, p.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) providers() []models.ProviderStatus {
	if h.registry == nil {
		return []models.ProviderStatus{}
	}

	all := h.registry.GetAllHealth()
	providers := make([]models.ProviderStatus, 0, len(all))
	for _, ph := range all {
		ps := models.ProviderStatus{
			Provider:      ph.Name,
			Status:        providerStatus(ph),
			CircuitState:  ph.CircuitState.String(),
			Requests:      ph.Counts.Requests,
			Failures:      ph.Counts.TotalFailures,
			LastSuccessAt: models.TimestampPtr(ph.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(ph.LastFailureAt),
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		providers = append(providers, ps)
	}
	return providers
}

func providerStatus(ph *resilience.ProviderHealth) models.HealthStatus {
	switch {
	case ph.IsUnhealthy():
		return models.HealthStatusFail
	case ph.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

// catalogStatus reports an empty catalog as degraded: lookups work but
// autocomplete has nothing to suggest.
func catalogStatus(n int) models.SubsystemStatus {
	detail := fmt.Sprintf("%d cities", n)
	status := models.HealthStatusOK
	if n == 0 {
		status = models.HealthStatusDegraded
		detail = "catalog is empty"
	}
	return models.SubsystemStatus{Name: "catalog", Status: status, Detail: &detail}
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
