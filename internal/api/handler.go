package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/gateway"
	"github.com/opensource-finance/riskservice/internal/query"
	"github.com/opensource-finance/riskservice/internal/repository"
	"github.com/opensource-finance/riskservice/internal/service"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *service.Service
	repo    domain.RiskRepository
	cache   domain.Cache
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, repo domain.RiskRepository, cache domain.Cache, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    repo,
		cache:   cache,
		version: version,
	}
}

// collection is the OData v4 envelope for entity collections.
type collection struct {
	Context string `json:"@odata.context"`
	Value   any    `json:"value"`
}

// ListRisks handles GET /Risks.
func (h *Handler) ListRisks(w http.ResponseWriter, r *http.Request) {
	q, err := query.Parse(domain.EntityRisks, r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	risks, err := h.svc.ReadRisks(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, collection{Context: "$metadata#" + domain.EntityRisks, Value: risks})
}

// GetRisk handles GET /Risks/{id}. Only $select and $expand apply.
func (h *Handler) GetRisk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "risk id is required",
		})
		return
	}

	q, err := query.Parse(domain.EntityRisks, r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	risk, err := h.svc.ReadRisk(r.Context(), id, q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, risk)
}

// ListBusinessPartners handles GET /BusinessPartners.
func (h *Handler) ListBusinessPartners(w http.ResponseWriter, r *http.Request) {
	q, err := query.Parse(domain.EntityBusinessPartners, r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	partners, err := h.svc.ReadBusinessPartners(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, collection{Context: "$metadata#" + domain.EntityBusinessPartners, Value: partners})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
// The store must answer; the partner API is not probed.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if err := h.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not reachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeError maps pipeline errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *gateway.StatusError
	switch {
	case errors.Is(err, query.ErrInvalidQuery), errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})

	case errors.As(err, &upstream):
		slog.Warn("partner API error",
			"path", r.URL.Path,
			"status", upstream.StatusCode,
			"trace_id", GetTraceID(r.Context()),
		)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":          upstream.Error(),
			"upstreamStatus": upstream.StatusCode,
		})

	default:
		slog.Error("request failed",
			"path", r.URL.Path,
			"error", err,
			"trace_id", GetTraceID(r.Context()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
