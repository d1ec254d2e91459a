// Package httpserver builds the process HTTP server from configuration.
package httpserver

import (
	"net/http"

	"warden/internal/platform/config"
)

// New builds an HTTP server with the configured timeouts. WriteTimeout must
// stay above the transaction budget or in-flight guarded operations get their
// responses cut off mid-write.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
