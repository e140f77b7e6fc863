package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/sugarbuddy/sse"
)

// StateMessage is the payload of a chat_message event on the state stream.
type StateMessage struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Text   string `json:"text"`
	Meta   Meta   `json:"meta"`
}

// ProactiveListener subscribes to the state stream and appends proactive
// messages to a conversation. Passive messages are skipped since the chat
// stream already rendered them.
type ProactiveListener struct {
	// BaseURL of the companion API.
	BaseURL string
	Client  *http.Client
	// Retry is the delay between reconnects. Default: 3s.
	Retry  time.Duration
	Logger *slog.Logger
}

// Run listens until ctx is cancelled, reconnecting after every disconnect.
func (p *ProactiveListener) Run(ctx context.Context, conv *Conversation) {
	retry := p.Retry
	if retry <= 0 {
		retry = 3 * time.Second
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	for {
		err := p.Listen(ctx, conv)
		if ctx.Err() != nil {
			return
		}
		log.DebugContext(ctx, "chat: state stream closed, reconnecting",
			"user_id", conv.UserID(), "error", err, "retry", retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

// Listen holds one state stream connection open until it ends.
func (p *ProactiveListener) Listen(ctx context.Context, conv *Conversation) error {
	u := strings.TrimRight(p.BaseURL, "/") + "/api/state/stream?user_id=" + url.QueryEscape(conv.UserID())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("chat: state stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("chat: state stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat: state stream: status %d", resp.StatusCode)
	}

	err = sse.Read(ctx, resp.Body, func(f sse.Frame) error {
		if f.Event == "chat_message" {
			HandleStateMessage(conv, f.Data)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("chat: state stream read: %w", err)
	}
	return err
}

// HandleStateMessage appends data as a proactive bubble when it qualifies
// and reports whether it did. A message addressed to another user is
// dropped: the hub falls back to every listener when the addressee has none.
func HandleStateMessage(conv *Conversation, data string) bool {
	var m StateMessage
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return false
	}
	if m.Text == "" || m.Meta.Mode != ModeProactive {
		return false
	}
	if m.UserID != "" && m.UserID != conv.UserID() {
		return false
	}
	role := RoleAssistant
	if m.Role == string(RoleUser) {
		role = RoleUser
	}
	conv.Append(role, m.Text, Meta{Mode: ModeProactive})
	return true
}
