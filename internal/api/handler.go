package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teamops/warden/internal/batch"
	"github.com/teamops/warden/internal/domain"
	"github.com/teamops/warden/internal/events"
	"github.com/teamops/warden/internal/metrics"
	"github.com/teamops/warden/internal/roster"
	"github.com/teamops/warden/internal/rules"
	"github.com/teamops/warden/internal/status"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store        domain.EventStore
	events       *events.Service
	statuses     *status.Service
	orchestrator *batch.Orchestrator
	snapshots    *metrics.SQLProvider
	directory    *roster.SQLRoster
	custom       *rules.CustomEngine
	cache        domain.Cache
	bus          domain.EventBus
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(store domain.EventStore, evts *events.Service, statuses *status.Service, orchestrator *batch.Orchestrator, snapshots *metrics.SQLProvider, directory *roster.SQLRoster, custom *rules.CustomEngine, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		store:        store,
		events:       evts,
		statuses:     statuses,
		orchestrator: orchestrator,
		snapshots:    snapshots,
		directory:    directory,
		custom:       custom,
		cache:        cache,
		bus:          bus,
		version:      version,
	}
}

// CreateEventRequest is the request body for POST /events.
type CreateEventRequest struct {
	EmployeeID   string                 `json:"employeeId"`
	EmployeeName string                 `json:"employeeName,omitempty"`
	Kind         domain.ViolationKind   `json:"kind"`
	Reason       string                 `json:"reason"`
	SourceType   domain.SourceType      `json:"sourceType,omitempty"`
	SourceMeta   *domain.SourceMetadata `json:"sourceMetadata,omitempty"`
	CreatedAt    *time.Time             `json:"createdAt,omitempty"`
}

func (req *CreateEventRequest) toEvent() *domain.ViolationEvent {
	ev := &domain.ViolationEvent{
		EmployeeID:   req.EmployeeID,
		EmployeeName: req.EmployeeName,
		Kind:         req.Kind,
		Reason:       req.Reason,
		SourceType:   req.SourceType,
		SourceMeta:   req.SourceMeta,
		IsEffective:  true,
	}
	if ev.SourceType == "" {
		ev.SourceType = domain.SourceManual
	}
	if req.CreatedAt != nil {
		ev.CreatedAt = *req.CreatedAt
	}
	return ev
}

// CreateEvent handles POST /events: manual entry of one violation.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	stored, err := h.events.Create(r.Context(), req.toEvent())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// BatchCreateEvents handles POST /events/batch with best-effort
// per-item semantics.
func (h *Handler) BatchCreateEvents(w http.ResponseWriter, r *http.Request) {
	var reqs []CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	evs := make([]*domain.ViolationEvent, 0, len(reqs))
	for i := range reqs {
		evs = append(evs, reqs[i].toEvent())
	}

	res, err := h.events.BatchCreate(r.Context(), evs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetEvent handles GET /events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// ListEventsResponse carries a page of events plus the stable total.
type ListEventsResponse struct {
	Events []*domain.ViolationEvent `json:"events"`
	Total  int                      `json:"total"`
}

// ListEvents handles GET /events with filters and pagination.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := domain.EventFilter{
		EmployeeID:    q.Get("employeeId"),
		SourceType:    domain.SourceType(q.Get("sourceType")),
		SourceBatchID: q.Get("batchId"),
		OnlyEffective: q.Get("effective") == "true",
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		f.To = t
	}
	f.Limit = intParam(q.Get("limit"), 50)
	f.Offset = intParam(q.Get("offset"), 0)

	evs, total, err := h.store.List(r.Context(), f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if evs == nil {
		evs = []*domain.ViolationEvent{}
	}
	writeJSON(w, http.StatusOK, ListEventsResponse{Events: evs, Total: total})
}

// CorrectEventRequest is the body for PATCH /events/{id}.
type CorrectEventRequest struct {
	Kind   domain.ViolationKind `json:"kind"`
	Reason string               `json:"reason"`
}

// CorrectEvent handles PATCH /events/{id}: a manual reason/kind
// correction. Provenance and created_at stay frozen.
func (h *Handler) CorrectEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CorrectEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := h.events.Correct(r.Context(), id, req.Kind, req.Reason); err != nil {
		writeStoreError(w, err)
		return
	}

	ev, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// SetEffectiveRequest is the body for PATCH /events/{id}/effective.
type SetEffectiveRequest struct {
	Effective *bool `json:"effective"`
}

// SetEffective handles PATCH /events/{id}/effective.
func (h *Handler) SetEffective(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SetEffectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Effective == nil {
		writeError(w, http.StatusBadRequest, "effective is required")
		return
	}

	if err := h.events.SetEffective(r.Context(), id, *req.Effective); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"effective": *req.Effective,
	})
}

// BatchSetEffectiveRequest is the body for POST /events/effective.
type BatchSetEffectiveRequest struct {
	IDs       []string `json:"ids"`
	Effective *bool    `json:"effective"`
}

// BatchSetEffective handles POST /events/effective: toggles many ids,
// reporting per-id failures without aborting the rest.
func (h *Handler) BatchSetEffective(w http.ResponseWriter, r *http.Request) {
	var req BatchSetEffectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Effective == nil {
		writeError(w, http.StatusBadRequest, "ids and effective are required")
		return
	}

	failed := h.events.BatchSetEffective(r.Context(), req.IDs, *req.Effective)
	writeJSON(w, http.StatusOK, map[string]any{
		"requested": len(req.IDs),
		"failed":    failed,
	})
}

// DeleteEvent handles DELETE /events/{id}. Hard delete, for manual
// entry mistakes only; computed violations are retracted by toggling.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.events.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStatus handles GET /employees/{id}/status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.statuses.GetStatus(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetStatusesRequest is the body for POST /statuses.
type GetStatusesRequest struct {
	EmployeeIDs []string `json:"employeeIds"`
}

// GetStatuses handles POST /statuses for bulk display.
func (h *Handler) GetStatuses(w http.ResponseWriter, r *http.Request) {
	var req GetStatusesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	writeJSON(w, http.StatusOK, h.statuses.GetStatuses(r.Context(), req.EmployeeIDs))
}

// RunBatchRequest is the body for POST /runs.
type RunBatchRequest struct {
	EmployeeIDs []string                  `json:"employeeIds"`
	RuleConfig  *domain.RuleConfiguration `json:"ruleConfig"`
}

// RunBatch handles POST /runs: one operator-initiated bulk evaluation.
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req RunBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(req.EmployeeIDs) == 0 {
		writeError(w, http.StatusBadRequest, "employeeIds is required")
		return
	}
	if req.RuleConfig == nil {
		writeError(w, http.StatusBadRequest, "ruleConfig is required")
		return
	}
	if req.RuleConfig.CustomExpression != "" && h.custom != nil {
		if err := h.custom.Validate(req.RuleConfig.CustomExpression); err != nil {
			writeError(w, http.StatusBadRequest, "invalid custom expression: "+err.Error())
			return
		}
	}

	res := h.orchestrator.Run(r.Context(), req.EmployeeIDs, req.RuleConfig)
	writeJSON(w, http.StatusOK, res)
}

// SaveSnapshot handles POST /snapshots: metric import for the provider
// table.
func (h *Handler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap domain.MetricSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := h.snapshots.SaveSnapshot(r.Context(), &snap); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// UpsertEmployeeRequest is the body for PUT /employees/{id}.
type UpsertEmployeeRequest struct {
	Name string `json:"name"`
}

// UpsertEmployee handles PUT /employees/{id}: roster maintenance.
func (h *Handler) UpsertEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpsertEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := h.directory.Upsert(r.Context(), id, req.Name); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "name": req.Name})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	healthy := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			healthy = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			healthy = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			healthy = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  healthy,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
