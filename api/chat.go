package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/sugarbuddy/history"
	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/observability"
	"github.com/hazyhaar/sugarbuddy/responder"
	"github.com/hazyhaar/sugarbuddy/sse"
)

// Sources recorded alongside stored turns.
const (
	SourceUser      = "user"
	SourceResponder = "ResponseGeneratorAgent"
	SourceProactive = "ProactiveAgent"
)

type chatRequest struct {
	Text string `json:"text"`
}

// prepareTurn validates the request, loads prompt context and stores the
// user turn. Context is loaded first so it never contains the new prompt.
func (s *Server) prepareTurn(w http.ResponseWriter, r *http.Request) (responder.Request, bool) {
	userID, err := s.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return responder.Request{}, false
	}
	var body chatRequest
	if err := kit.DecodeJSON(r, &body); err != nil {
		kit.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return responder.Request{}, false
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		kit.WriteError(w, http.StatusBadRequest, errors.New("text is required"))
		return responder.Request{}, false
	}

	turns := s.ContextTurns
	if turns <= 0 {
		turns = 20
	}
	past, err := s.History.Load(r.Context(), userID, turns, false)
	if err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return responder.Request{}, false
	}
	if _, err := s.History.Append(r.Context(), userID, history.Entry{Role: "user", Content: text, Source: SourceUser}); err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return responder.Request{}, false
	}
	return responder.Request{UserID: userID, Prompt: text, History: history.ToMessages(past)}, true
}

// finishTurn stores a non-empty assistant reply and broadcasts it as a
// passive chat message. A reply cut short by a disconnect is still stored.
func (s *Server) finishTurn(r *http.Request, userID, reply string) {
	if reply == "" {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	if _, err := s.History.Append(ctx, userID, history.Entry{
		Role:    "assistant",
		Content: reply,
		Source:  SourceResponder,
		Meta:    map[string]any{"mode": "passive"},
	}); err != nil {
		logger(r).Error("api: store assistant turn", "user_id", userID, "error", err)
	}
	if s.Hub != nil {
		s.Hub.BroadcastChat(userID, "assistant", reply, "passive")
	}
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.prepareTurn(w, r)
	if !ok {
		return
	}
	sw, err := sse.NewWriter(w)
	if err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	start := time.Now()
	var reply strings.Builder
	err = s.Responder.Stream(r.Context(), req, func(delta string) error {
		reply.WriteString(delta)
		return sw.Event("message", map[string]string{"text": delta})
	})
	s.finishTurn(r, req.UserID, reply.String())

	outcome := "ok"
	switch {
	case err == nil:
		sw.Raw("done", sse.DoneSentinel)
	case r.Context().Err() != nil:
		outcome = "client_gone"
		logger(r).Info("api: chat stream client gone", "user_id", req.UserID, "chars", reply.Len())
	default:
		outcome = "error"
		logger(r).Warn("api: chat stream failed", "user_id", req.UserID, "error", err)
		sw.Event("error", map[string]string{"message": err.Error()})
	}
	labels := map[string]string{"outcome": outcome}
	s.Metrics.Since(observability.MetricChatStreamMs, start, labels)
	s.Metrics.Record(observability.MetricChatStreamChars, float64(len([]rune(reply.String()))), "count", labels)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.prepareTurn(w, r)
	if !ok {
		return
	}
	reply, err := responder.Collect(r.Context(), s.Responder, req)
	s.finishTurn(r, req.UserID, reply)
	if err != nil {
		logger(r).Warn("api: chat failed", "user_id", req.UserID, "error", err)
		kit.WriteError(w, http.StatusBadGateway, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	recs, err := s.History.Load(r.Context(), userID, kit.QueryInt(r, "limit", 100), false)
	if err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, map[string]any{"messages": recs})
}

func (s *Server) handleProactive(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	var body chatRequest
	if err := kit.DecodeJSON(r, &body); err != nil || strings.TrimSpace(body.Text) == "" {
		kit.WriteError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}
	if _, err := s.History.Append(r.Context(), userID, history.Entry{
		Role:    "assistant",
		Content: body.Text,
		Source:  SourceProactive,
		Meta:    map[string]any{"mode": "proactive"},
	}); err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	n := 0
	if s.Hub != nil {
		n = s.Hub.BroadcastChat(userID, "assistant", body.Text, "proactive")
	}
	logger(r).Info("api: proactive message published", "user_id", userID, "delivered", n)
	kit.WriteJSON(w, http.StatusOK, map[string]int{"delivered": n})
}
