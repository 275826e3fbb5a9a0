// Package requesttime provides middleware for request-scoped time and request IDs.
// All operations within a single HTTP request use the same "now" timestamp, so a
// certificate's issued_at and its audit log line agree.
package requesttime

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"sanad/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and copies
// chi's request ID into requestcontext. Mount it after middleware.RequestID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			ctx = requestcontext.WithRequestID(ctx, reqID)
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
