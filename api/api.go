// Package api is the companion backend: per-user record files, editable
// profiles, chat with persisted history, and the live state stream.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sugarbuddy/guard"
	"github.com/hazyhaar/sugarbuddy/history"
	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/observability"
	"github.com/hazyhaar/sugarbuddy/responder"
	"github.com/hazyhaar/sugarbuddy/shield"
	"github.com/hazyhaar/sugarbuddy/statehub"
	"github.com/hazyhaar/sugarbuddy/userdata"
)

// Server wires the companion endpoints.
type Server struct {
	Users     *userdata.Store
	History   *history.Store
	Hub       *statehub.Hub
	Responder responder.Responder

	DefaultUserID string
	// ContextTurns is how many stored turns feed the responder. Default: 20.
	ContextTurns int
	// ChatLimiter guards the chat POSTs. Optional.
	ChatLimiter *shield.RateLimiter
	// KeepAlive between state stream comments. Default: 15s.
	KeepAlive time.Duration
	// Metrics records chat stream timings. Optional.
	Metrics *observability.Metrics
}

// Routes mounts every companion endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		kit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/local/manifest/{userID}", s.handleManifest)
	r.Get("/api/local/{name}/{userID}", s.handleLocalRecord)
	r.Get("/data/users/{userID}/{file}", s.handleStaticFile)

	r.Get("/api/profile", s.handleGetProfile)
	r.Patch("/api/profile", s.handlePatchProfile)
	r.Post("/api/profile/revoke", s.handleRevokeProfile)
	r.Get("/api/schedule", s.handleSchedule)

	r.Group(func(r chi.Router) {
		if s.ChatLimiter != nil {
			r.Use(s.ChatLimiter.Middleware)
		}
		r.Post("/api/chat/stream", s.handleChatStream)
		r.Post("/api/chat", s.handleChat)
		r.Post("/api/proactive", s.handleProactive)
	})
	r.Get("/api/chat/history", s.handleHistory)
	r.Get("/api/metrics", s.handleMetrics)

	r.Get("/api/state/stream", s.handleStateStream)
	r.Get("/api/proactive/stream", s.handleProactiveStream)
}

// userID reads ?user_id=, falling back to the configured default.
func (s *Server) userID(r *http.Request) (string, error) {
	id := r.URL.Query().Get("user_id")
	if id == "" {
		id = s.DefaultUserID
	}
	if err := guard.ValidateIdentifier(id); err != nil {
		return "", fmt.Errorf("user_id: %w", err)
	}
	return id, nil
}

func logger(r *http.Request) *slog.Logger { return shield.GetLogger(r.Context()) }

// statusFor maps store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, userdata.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, guard.ErrInvalidIdentifier),
		errors.Is(err, guard.ErrPathTraversal),
		errors.Is(err, userdata.ErrInvalidPath):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	points, err := s.Metrics.Query(r.Context(), r.URL.Query().Get("name"), kit.QueryInt(r, "limit", 100))
	if err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, map[string]any{"metrics": points})
}
