package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/domresolve/idgen"
	"github.com/hazyhaar/domresolve/kit"
)

// requestIDs are short because they only scope one process's logs.
var newRequestID = idgen.Prefixed("req_", idgen.NanoID(8))

// RequestID assigns each request an id and injects it into the
// context, the response headers, and a per-request structured logger.
// The id is stored under kit.RequestIDKey and the logger under LoggerKey.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
		}

		ctx := kit.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)

		logger := slog.Default().With(
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
