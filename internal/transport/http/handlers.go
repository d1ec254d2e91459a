package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"warden/internal/audit"
	"warden/internal/content"
	"warden/internal/guard/models"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

// Handler is the thin HTTP layer. It delegates to the content manager and the
// audit query side without embedding business logic so transport concerns
// remain isolated.
type Handler struct {
	logger  *slog.Logger
	content *content.Manager
	audit   audit.Query
}

// NewHandler creates the HTTP handler set.
func NewHandler(logger *slog.Logger, manager *content.Manager, query audit.Query) *Handler {
	return &Handler{
		logger:  logger,
		content: manager,
		audit:   query,
	}
}

// Register mounts all routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/content/{id}", h.handleGetContent)
	r.Put("/content/{id}", h.handleUpdateContent)
	r.Post("/content/{id}/publish", h.handlePublishContent)
	r.Post("/content/{id}/unpublish", h.handleUnpublishContent)
	r.Get("/audit/records", h.handleListAudit)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := h.content.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
			return
		}
		h.logger.ErrorContext(r.Context(), "content read failed", "content_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"content_id": entry.ID,
		"title":      entry.Title,
		"body":       entry.Body,
		"status":     string(entry.Status),
		"version":    entry.Version,
		"updated_at": entry.UpdatedAt,
	})
}

type updateContentRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (h *Handler) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.content.Update(r.Context(), securityContext(r), id, req.Title, req.Body)
	if err != nil {
		h.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Data)
}

func (h *Handler) handlePublishContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.content.Publish(r.Context(), securityContext(r), id)
	if err != nil {
		h.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Data)
}

func (h *Handler) handleUnpublishContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.content.Unpublish(r.Context(), securityContext(r), id)
	if err != nil {
		h.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Data)
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	records, err := h.audit.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}

	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any{
			"id":           rec.ID,
			"operation_id": rec.OperationID,
			"kind":         rec.Kind,
			"principal_id": rec.PrincipalID,
			"outcome":      string(rec.Outcome),
			"reason":       rec.Reason,
			"started_at":   rec.StartedAt,
			"duration_ms":  rec.DurationMs,
			"request_id":   rec.RequestID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

// securityContext assembles the caller identity for a guarded operation from
// values the middleware chain placed in the request context.
func securityContext(r *http.Request) models.SecurityContext {
	ctx := r.Context()
	return models.SecurityContext{
		PrincipalID: requestcontext.PrincipalID(ctx),
		IPAddress:   requestcontext.ClientIP(ctx),
		UserAgent:   requestcontext.UserAgent(ctx),
		RequestID:   requestcontext.RequestID(ctx),
	}
}
