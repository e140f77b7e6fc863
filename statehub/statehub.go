// Package statehub fans per-user live updates out to state stream
// subscribers.
//
// Publishing never blocks: a subscriber whose buffer is full misses the
// event. A broadcast addressed to a user with no subscribers goes to every
// subscriber instead.
package statehub

import (
	"log/slog"
	"sync"
)

// Event names carried on the state stream.
const (
	EventProfileUpdate  = "profile_update"
	EventScheduleUpdate = "schedule_update"
	EventChatMessage    = "chat_message"
	EventStateError     = "state_error"
)

// Event is one named payload.
type Event struct {
	Name    string
	Payload any
}

// ChatPayload is the body of a chat_message event.
type ChatPayload struct {
	UserID string         `json:"user_id"`
	Role   string         `json:"role"`
	Text   string         `json:"text"`
	Meta   map[string]any `json:"meta"`
}

// Config configures a Hub.
type Config struct {
	// BufferSize per subscriber. Default: 64.
	BufferSize int
	// Snapshot returns the events queued for a new subscriber before any
	// broadcast. Optional.
	Snapshot func(userID string) []Event
	Logger   *slog.Logger
}

// Hub tracks subscribers by user.
type Hub struct {
	bufSize  int
	snapshot func(string) []Event
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	closed bool
}

// New creates a Hub.
func New(cfg Config) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Hub{
		bufSize:  cfg.BufferSize,
		snapshot: cfg.Snapshot,
		logger:   cfg.Logger,
		subs:     make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe registers a listener for userID. The snapshot events are already
// queued on the returned channel. The channel is closed by unsubscribe or
// by Close.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	var initial []Event
	if h.snapshot != nil {
		initial = h.snapshot(userID)
	}
	ch := make(chan Event, h.bufSize+len(initial))
	for _, ev := range initial {
		ch <- ev
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	n := len(set)
	h.mu.Unlock()
	h.logger.Debug("statehub: subscribe", "user_id", userID, "listeners", n)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[userID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, userID)
				}
			}
			h.logger.Debug("statehub: unsubscribe", "user_id", userID)
		})
	}
}

// Broadcast publishes an event to userID's listeners, or to every listener
// when userID has none or is empty. It returns the number of listeners that
// received the event.
func (h *Hub) Broadcast(userID, name string, payload any) int {
	ev := Event{Name: name, Payload: payload}

	h.mu.Lock()
	var targets []chan Event
	if userID != "" {
		for ch := range h.subs[userID] {
			targets = append(targets, ch)
		}
	}
	if len(targets) == 0 {
		for _, set := range h.subs {
			for ch := range set {
				targets = append(targets, ch)
			}
		}
	}
	delivered := 0
	for _, ch := range targets {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	h.mu.Unlock()

	switch {
	case len(targets) == 0:
		h.logger.Debug("statehub: broadcast dropped, no listeners", "event", name, "user_id", userID)
	case delivered < len(targets):
		h.logger.Warn("statehub: slow listeners skipped", "event", name, "user_id", userID,
			"listeners", len(targets), "delivered", delivered)
	}
	return delivered
}

// BroadcastChat publishes a chat_message event.
func (h *Hub) BroadcastChat(userID, role, text, mode string) int {
	meta := map[string]any{}
	if mode != "" {
		meta["mode"] = mode
	}
	return h.Broadcast(userID, EventChatMessage, ChatPayload{UserID: userID, Role: role, Text: text, Meta: meta})
}

// Listeners returns the subscriber count for userID.
func (h *Hub) Listeners(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for uid, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, uid)
	}
}
