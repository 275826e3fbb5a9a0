package httpserver

import (
	"net/http"
	"time"

	"sanad/internal/platform/config"
)

// New builds the ledger HTTP server. Write timeout must exceed the ledger's
// transaction timeout so a slow issuance still gets its response written.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}
