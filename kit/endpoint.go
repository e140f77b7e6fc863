// Package kit carries request-scoped values across transports and adapts
// transport-agnostic endpoints to HTTP and MCP.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is a transport-agnostic unit of work. The request and response are
// decoded/encoded by the transport adapter.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// WithUser returns a Middleware that stamps userID into the context when the
// request carries one. extract returns "" when the request has no user.
func WithUser(extract func(req any) string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			if id := extract(req); id != "" {
				ctx = WithUserID(ctx, id)
			}
			return next(ctx, req)
		}
	}
}

// EnsureRequestID returns a Middleware that stamps a fresh request id from
// gen unless the context already carries one.
func EnsureRequestID(gen func() string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			if GetRequestID(ctx) == "" {
				ctx = WithRequestID(ctx, gen())
			}
			return next(ctx, req)
		}
	}
}

// Logging returns a Middleware that logs each call to the named endpoint
// with its transport, request id, user id and duration. Failures log at warn.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"request_id", GetRequestID(ctx),
				"user_id", GetUserID(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.WarnContext(ctx, "kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "kit: endpoint", attrs...)
			}
			return resp, err
		}
	}
}
