package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	dErrors "sanad/pkg/domain-errors"
	"sanad/pkg/platform/httputil"
	"sanad/pkg/requestcontext"
)

// finishTimeout bounds Complete and Release. They run detached from the
// request so a client that hangs up after the handler ran cannot leave the
// key pending.
const finishTimeout = 5 * time.Second

// Middleware executes each keyed request at most once. Requests without the
// header pass through. A reused key with a different body is a conflict, as
// is a retry that arrives while the first attempt is still running. Server
// errors release the key so the client can try again.
func Middleware(store Store, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > MaxKeyLength {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "idempotency key is too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodyBytes+1))
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := fingerprintOf(r, body)

			rec, err := store.Reserve(ctx, key, fingerprint)
			switch {
			case errors.Is(err, ErrInFlight):
				httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "a request with this idempotency key is in progress"))
				return
			case err != nil:
				logger.ErrorContext(ctx, "idempotency store unavailable",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "idempotency store unavailable"))
				return
			case rec != nil:
				if rec.Fingerprint != fingerprint {
					httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "idempotency key was used with a different request"))
					return
				}
				replay(w, rec)
				return
			}

			var buf bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&buf)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
			defer cancel()
			if status >= http.StatusInternalServerError {
				if err := store.Release(finishCtx, key); err != nil {
					logger.WarnContext(ctx, "failed to release idempotency key", "error", err)
				}
				return
			}
			err = store.Complete(finishCtx, key, Record{
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        buf.Bytes(),
			}, ttl)
			if err != nil {
				logger.WarnContext(ctx, "failed to store idempotent response",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
			}
		})
	}
}

func replay(w http.ResponseWriter, rec *Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HeaderReplayed, strconv.FormatBool(true))
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

func fingerprintOf(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
