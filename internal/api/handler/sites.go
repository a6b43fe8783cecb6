package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/airpulse/airpulse/internal/airquality"
	"github.com/airpulse/airpulse/internal/api/models"
	"github.com/airpulse/airpulse/internal/api/response"
	"github.com/airpulse/airpulse/internal/coordinator"
	"github.com/airpulse/airpulse/internal/history"
)

// SiteResolver resolves monitoring sites against the upstream provider.
type SiteResolver interface {
	FindSite(ctx context.Context, lat, lon float64) (airquality.Site, error)
	ListSites(ctx context.Context) ([]airquality.Site, error)
}

// SitesHandler handles site observation and status endpoints.
type SitesHandler struct {
	coordinators *coordinator.Registry
	resolver     SiteResolver
	history      history.Repository
}

// NewSitesHandler creates a new SitesHandler. The resolver and history
// repository are optional; endpoints needing an absent dependency return
// 503.
func NewSitesHandler(coordinators *coordinator.Registry, resolver SiteResolver, hist history.Repository) *SitesHandler {
	return &SitesHandler{
		coordinators: coordinators,
		resolver:     resolver,
		history:      hist,
	}
}

// ListSites handles GET /v1/sites - list the provider's air monitoring sites.
func (h *SitesHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		response.ServiceUnavailable(w, r, "site lookup is not configured")
		return
	}

	sites, err := h.resolver.ListSites(r.Context())
	if err != nil {
		writeFetchError(w, r, err)
		return
	}

	list := models.SiteList{Items: make([]models.Site, 0, len(sites))}
	for _, s := range sites {
		list.Items = append(list.Items, toAPISite(s))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// NearestSite handles GET /v1/sites/nearest - resolve the site closest to
// the given coordinates.
func (h *SitesHandler) NearestSite(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		response.ServiceUnavailable(w, r, "site lookup is not configured")
		return
	}

	lat, lon, fieldErrors := parseCoordinates(r)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid coordinates", fieldErrors)
		return
	}

	site, err := h.resolver.FindSite(r.Context(), lat, lon)
	if err != nil {
		writeFetchError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toAPISite(site))
}

// GetObservation handles GET /v1/sites/{siteID}/observation - the last
// known observation for a configured site.
func (h *SitesHandler) GetObservation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookupCoordinator(w, r)
	if !ok {
		return
	}

	obs := c.Observation()
	if obs.IsZero() {
		response.NotFound(w, r, "no observation recorded yet")
		return
	}

	response.JSON(w, r, http.StatusOK, models.SiteObservation{
		Site:        toAPISite(c.Site()),
		Observation: obs,
	})
}

// GetStatus handles GET /v1/sites/{siteID}/status - coordinator state for
// a configured site.
func (h *SitesHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookupCoordinator(w, r)
	if !ok {
		return
	}

	response.JSON(w, r, http.StatusOK, c.Status())
}

// GetHistory handles GET /v1/sites/{siteID}/history - archived
// observations for a configured site.
func (h *SitesHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookupCoordinator(w, r)
	if !ok {
		return
	}

	if h.history == nil {
		response.ServiceUnavailable(w, r, "history archive is not configured")
		return
	}

	opts, fieldErrors := parseHistoryQuery(r)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid history query", fieldErrors)
		return
	}

	entries, err := h.history.List(r.Context(), c.Site().ID, opts)
	if err != nil {
		response.InternalError(w, r, "history query failed")
		return
	}

	out := models.SiteHistory{
		SiteID: c.Site().ID,
		Items:  make([]models.HistoryEntry, 0, len(entries)),
	}
	for _, e := range entries {
		out.Items = append(out.Items, models.HistoryEntry{
			RecordedAt:  models.Timestamp(e.RecordedAt),
			Observation: e.Observation,
		})
	}
	response.JSON(w, r, http.StatusOK, out)
}

// Refresh handles POST /v1/sites/{siteID}/refresh - trigger an immediate
// fetch and return the resulting observation. Concurrent refreshes share
// one upstream call; refreshes inside the minimum fetch interval return
// the current observation untouched.
func (h *SitesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookupCoordinator(w, r)
	if !ok {
		return
	}

	if err := c.RequestRefresh(r.Context()); err != nil {
		writeFetchError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.SiteObservation{
		Site:        toAPISite(c.Site()),
		Observation: c.Observation(),
	})
}

// lookupCoordinator resolves the {siteID} URL parameter to a registered
// coordinator, writing the error response on failure.
func (h *SitesHandler) lookupCoordinator(w http.ResponseWriter, r *http.Request) (*coordinator.Coordinator, bool) {
	siteID := chi.URLParam(r, "siteID")
	if siteID == "" {
		response.BadRequest(w, r, "siteID is required", nil)
		return nil, false
	}

	c, ok := h.coordinators.Get(siteID)
	if !ok {
		response.NotFound(w, r, "site is not configured")
		return nil, false
	}
	return c, true
}

func toAPISite(s airquality.Site) models.Site {
	return models.Site{
		ID:    s.ID,
		Name:  s.Name,
		Point: models.Point{Lat: s.Lat, Lon: s.Lon},
	}
}

func parseCoordinates(r *http.Request) (lat, lon float64, fieldErrors []models.FieldError) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "lat",
			Message: "must be a number between -90 and 90",
		})
	}

	lon, err = strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "lon",
			Message: "must be a number between -180 and 180",
		})
	}

	return lat, lon, fieldErrors
}

func parseHistoryQuery(r *http.Request) (history.QueryOptions, []models.FieldError) {
	q := r.URL.Query()

	var opts history.QueryOptions
	var fieldErrors []models.FieldError

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field:   "from",
				Message: "must be an RFC 3339 timestamp",
			})
		}
		opts.From = t
	}

	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field:   "to",
				Message: "must be an RFC 3339 timestamp",
			})
		}
		opts.To = t
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field:   "limit",
				Message: "must be a positive integer",
			})
		}
		opts.Limit = n
	}

	return opts, fieldErrors
}

// writeFetchError maps fetch-path errors onto problem responses.
func writeFetchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, airquality.ErrSiteNotFound):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, airquality.ErrRateLimited),
		errors.Is(err, airquality.ErrRetriesExhausted),
		errors.Is(err, airquality.ErrFetchTimeout),
		errors.Is(err, coordinator.ErrStopped):
		response.ServiceUnavailable(w, r, err.Error())
	case errors.Is(err, airquality.ErrTransport),
		errors.Is(err, airquality.ErrMalformedResponse),
		errors.Is(err, airquality.ErrSchema):
		response.BadGateway(w, r, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "request cancelled before fetch completed")
	default:
		response.InternalError(w, r, "unexpected fetch failure")
	}
}
