package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

const (
	requestIDHeader  = "X-Request-ID"
	maxRequestIDSize = 128
)

// Tracing reuses the caller's X-Request-ID when it looks sane and mints one
// otherwise. The id is echoed back and ends up on every log line.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDSize {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}
