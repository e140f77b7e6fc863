package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/sugarbuddy/guard"
	"github.com/hazyhaar/sugarbuddy/idgen"
	"github.com/hazyhaar/sugarbuddy/kit"
)

// TraceID generates a trace ID for each request and injects it into the
// context, the X-Trace-ID response header, and a per-request logger.
//
// The request id is taken from an incoming X-Request-ID when it is a valid
// identifier, so a dashboard call and the API call it causes share one id;
// otherwise a new one is minted. The client IP and the user_id query
// parameter are stored in the context as well.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := idgen.TraceID()
		requestID := r.Header.Get(kit.HeaderRequestID)
		if guard.ValidateIdentifier(requestID) != nil {
			requestID = idgen.RequestID()
		}
		clientIP := ExtractIP(r)

		ctx := kit.WithTraceID(r.Context(), traceID)
		ctx = kit.WithRequestID(ctx, requestID)
		ctx = kit.WithClientIP(ctx, clientIP)
		ctx = kit.WithTransport(ctx, "http")
		w.Header().Set("X-Trace-ID", traceID)
		w.Header().Set(kit.HeaderRequestID, requestID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", clientIP,
		)
		if uid := r.URL.Query().Get("user_id"); uid != "" {
			ctx = kit.WithUserID(ctx, uid)
			logger = logger.With("user_id", uid)
		}
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
