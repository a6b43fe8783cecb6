// Package handler provides HTTP handlers for the AirPulse API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/airpulse/airpulse/internal/api/models"
	"github.com/airpulse/airpulse/internal/api/response"
	"github.com/airpulse/airpulse/internal/coordinator"
	"github.com/airpulse/airpulse/internal/provider/resilience"
)

// DatabasePinger checks database connectivity.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version      string
	buildTime    string
	startedAt    time.Time
	health       *resilience.Registry
	coordinators *coordinator.Registry
	db           DatabasePinger
}

// NewOpsHandler creates a new OpsHandler. The health registry, coordinator
// registry and database are all optional; absent dependencies are skipped
// during readiness and status checks.
func NewOpsHandler(version, buildTime string, health *resilience.Registry, coordinators *coordinator.Registry, db DatabasePinger) *OpsHandler {
	return &OpsHandler{
		version:      version,
		buildTime:    buildTime,
		startedAt:    time.Now(),
		health:       health,
		coordinators: coordinators,
		db:           db,
	}
}

// HealthCheck handles GET /healthz - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
			"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /readyz - readiness check.
//
// The database, when configured, is a hard dependency: an unreachable
// database fails readiness. Provider circuits being open only degrades
// the status, since cached observations remain servable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			health := models.Health{
				Status: models.HealthStatusFail,
				Time:   models.Timestamp(time.Now()),
				Details: map[string]interface{}{
					"database": err.Error(),
				},
			}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}

	status := models.HealthStatusOK
	details := map[string]interface{}{}

	if h.health != nil && h.health.ProviderCount() > 0 {
		open := 0
		for _, ph := range h.health.GetAllHealth() {
			if ph.IsUnhealthy() {
				open++
			}
		}
		if open == h.health.ProviderCount() {
			status = models.HealthStatusDegraded
			details["providers"] = "all circuits open, serving cached observations"
		}
	}

	health := models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())
	overall := models.HealthStatusOK

	subsystems := h.subsystemStatuses(r.Context())
	for _, s := range subsystems {
		switch s.Status {
		case models.HealthStatusFail:
			overall = models.HealthStatusFail
		case models.HealthStatusDegraded:
			if overall == models.HealthStatusOK {
				overall = models.HealthStatusDegraded
			}
		}
	}

	providers := h.providerStatuses()
	for _, p := range providers {
		if p.Status != models.HealthStatusOK && overall == models.HealthStatusOK {
			overall = models.HealthStatusDegraded
		}
	}

	status := models.SystemStatus{
		Status:     overall,
		Time:       now,
		Subsystems: subsystems,
		Providers:  providers,
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystemStatuses(ctx context.Context) []models.SubsystemStatus {
	subsystems := make([]models.SubsystemStatus, 0, 2)

	if h.db != nil {
		dbStatus := models.SubsystemStatus{Name: "database", Status: models.HealthStatusOK}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := h.db.Ping(pingCtx); err != nil {
			detail := err.Error()
			dbStatus.Status = models.HealthStatusFail
			dbStatus.Detail = &detail
		}
		cancel()
		subsystems = append(subsystems, dbStatus)
	}

	if h.coordinators != nil {
		schedStatus := models.SubsystemStatus{Name: "scheduler", Status: models.HealthStatusOK}
		if h.coordinators.Count() == 0 {
			detail := "no sites configured"
			schedStatus.Status = models.HealthStatusDegraded
			schedStatus.Detail = &detail
		}
		subsystems = append(subsystems, schedStatus)
	}

	return subsystems
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.health == nil {
		return []models.ProviderStatus{}
	}

	all := h.health.GetAllHealth()
	providers := make([]models.ProviderStatus, 0, len(all))
	for _, ph := range all {
		p := models.ProviderStatus{
			Provider: ph.Name,
			Status:   models.HealthStatusOK,
		}
		switch {
		case ph.IsUnhealthy():
			p.Status = models.HealthStatusFail
		case ph.IsDegraded():
			p.Status = models.HealthStatusDegraded
		}
		if ph.LastSuccessAt != nil {
			ts := models.Timestamp(*ph.LastSuccessAt)
			p.LastSuccessAt = &ts
		}
		if ph.LastFailureAt != nil {
			ts := models.Timestamp(*ph.LastFailureAt)
			p.LastFailureAt = &ts
		}
		if ph.LastError != "" {
			msg := ph.LastError
			p.Message = &msg
		}
		providers = append(providers, p)
	}
	return providers
}
