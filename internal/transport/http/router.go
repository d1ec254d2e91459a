package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the middleware chain and all public endpoints. The order
// matters: request ID first so everything downstream can log it, then client
// metadata and principal resolution so handlers can assemble the security
// context for guarded operations.
func NewRouter(h *Handler, validator TokenValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(ClientMetadata)
	r.Use(Principal(validator, logger))

	h.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}
