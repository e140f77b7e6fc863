package dashboard

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/sugarbuddy/chat"
	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/shield"
	"github.com/hazyhaar/sugarbuddy/sse"
)

// RenderEvent is one bubble render pushed to the browser.
type RenderEvent struct {
	ID     string `json:"id"`
	Role   string `json:"role"`
	HTML   string `json:"html"`
	Mode   string `json:"mode,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

// DoneEvent ends a chat stream.
type DoneEvent struct {
	ID     string `json:"id"`
	Failed bool   `json:"failed"`
}

func (d *Dashboard) render(m chat.Message) RenderEvent {
	return RenderEvent{
		ID:     m.ID,
		Role:   string(m.Role),
		HTML:   d.sanitize(m.HTML),
		Mode:   m.Meta.Mode,
		Failed: m.Failed,
	}
}

func (d *Dashboard) handleChatStream(w http.ResponseWriter, r *http.Request) {
	userID, err := d.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := kit.DecodeJSON(r, &body); err != nil || strings.TrimSpace(body.Text) == "" {
		kit.WriteError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	s := d.session(userID)
	if !s.composer.Enabled() {
		kit.WriteError(w, http.StatusConflict, chat.ErrComposerBusy)
		return
	}
	sw, err := sse.NewWriter(w)
	if err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	log := shield.GetLogger(r.Context())
	var mu sync.Mutex
	emit := func(name string, v any) {
		if err := sw.Event(name, v); err != nil {
			log.Debug("dashboard: chat stream write failed", "user_id", userID, "event", name, "error", err)
		}
	}
	stop := s.conv.Observe(func(m chat.Message) {
		if m.Meta.Mode == chat.ModeProactive {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		emit("render", d.render(m))
	})
	msg, err := d.streamer.StreamReply(r.Context(), s.conv, &s.composer, strings.TrimSpace(body.Text))
	stop()

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		log.Info("dashboard: chat rejected", "user_id", userID, "error", err)
		emit("error", map[string]string{"message": err.Error()})
		return
	}
	emit("done", DoneEvent{ID: msg.ID, Failed: msg.Failed})
}

// handleProactive relays proactive bubbles appended by the user's state
// stream listener, which runs while at least one relay is open.
func (d *Dashboard) handleProactive(w http.ResponseWriter, r *http.Request) {
	userID, err := d.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	s := d.session(userID)
	msgs := make(chan chat.Message, 16)
	stop := s.conv.Observe(func(m chat.Message) {
		if m.Meta.Mode != chat.ModeProactive {
			return
		}
		select {
		case msgs <- m:
		default:
			d.logger.Warn("dashboard: proactive relay full, message dropped", "user_id", userID, "message_id", m.ID)
		}
	})
	defer stop()
	detach := d.attachRelay(s)
	defer detach()

	sw, err := sse.NewWriter(w)
	if err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	tick := time.NewTicker(15 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			if err := sw.Comment("keep-alive"); err != nil {
				return
			}
		case m := <-msgs:
			if err := sw.Event("proactive", d.render(m)); err != nil {
				return
			}
		}
	}
}

// handleMessages returns the conversation so a reloaded page can hydrate.
func (d *Dashboard) handleMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := d.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	s := d.session(userID)
	out := []RenderEvent{}
	for _, m := range s.conv.Messages() {
		out = append(out, d.render(m))
	}
	kit.WriteJSON(w, http.StatusOK, map[string]any{
		"messages":         out,
		"composer_enabled": s.composer.Enabled(),
	})
}

func (d *Dashboard) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, err := d.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	md, err := chat.Transcript(d.session(userID).conv)
	if err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sugarbuddy-`+userID+`.md"`)
	w.Write([]byte(md))
}
