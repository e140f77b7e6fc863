package api

import (
	"net/http"
	"time"

	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/observability"
	"github.com/hazyhaar/sugarbuddy/sse"
	"github.com/hazyhaar/sugarbuddy/statehub"
)

func (s *Server) keepAlive() time.Duration {
	if s.KeepAlive > 0 {
		return s.KeepAlive
	}
	return 15 * time.Second
}

// handleStateStream relays every hub event for the user: the profile
// and schedule snapshot first, then broadcasts, with keep-alive comments in between.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	s.relay(w, r, func(sw *sse.Writer, ev statehub.Event) error {
		return sw.Event(ev.Name, ev.Payload)
	})
}

// handleProactiveStream is the compact variant used by lightweight clients:
// only the user's own proactive chat messages, as proactive_delta then
// proactive_done. Messages reaching this listener through the hub's
// no-listener fallback are skipped.
func (s *Server) handleProactiveStream(w http.ResponseWriter, r *http.Request) {
	userID, _ := s.userID(r)
	s.relay(w, r, func(sw *sse.Writer, ev statehub.Event) error {
		msg, ok := ev.Payload.(statehub.ChatPayload)
		if ev.Name != statehub.EventChatMessage || !ok || msg.Meta["mode"] != "proactive" || msg.Text == "" {
			return nil
		}
		if msg.UserID != "" && msg.UserID != userID {
			return nil
		}
		if err := sw.Event("proactive_delta", map[string]string{"delta": msg.Text}); err != nil {
			return err
		}
		return sw.Raw("proactive_done", "")
	})
}

func (s *Server) relay(w http.ResponseWriter, r *http.Request, emit func(*sse.Writer, statehub.Event) error) {
	userID, err := s.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	sw, err := sse.NewWriter(w)
	if err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	events, unsubscribe := s.Hub.Subscribe(userID)
	defer unsubscribe()
	s.Metrics.Record(observability.MetricStateListeners, float64(s.Hub.Listeners(userID)), "count",
		map[string]string{"user_id": userID})

	tick := time.NewTicker(s.keepAlive())
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			if err := sw.Comment("keep-alive"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := emit(sw, ev); err != nil {
				logger(r).Debug("api: state stream write failed", "user_id", userID, "error", err)
				return
			}
		}
	}
}
