package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/markdown"
	"github.com/hazyhaar/sugarbuddy/sse"
)

// DefaultFallbackNotice replaces the assistant bubble when a stream fails.
const DefaultFallbackNotice = "[演示模式] 后端未连接。"

// Streamer posts prompts to the chat stream endpoint and renders the reply.
type Streamer struct {
	// Endpoint is the full URL of POST /api/chat/stream.
	Endpoint string
	// Client defaults to http.DefaultClient. Streams have no client timeout.
	Client         *http.Client
	FallbackNotice string
	Logger         *slog.Logger
}

// upstreamError is an "error" event sent by the backend.
type upstreamError struct{ message string }

func (e *upstreamError) Error() string { return "chat: upstream error: " + e.message }

// StreamReply appends the user bubble and an empty assistant bubble, then
// streams the reply into the assistant bubble, re-rendering the whole
// accumulated text after every non-empty delta.
//
// Any failure replaces the assistant bubble with the literal fallback
// notice, discarding partial text. The composer is released on every path.
// ErrComposerBusy is returned, with the conversation untouched, when another
// reply is in flight.
func (s *Streamer) StreamReply(ctx context.Context, conv *Conversation, composer *Composer, prompt string) (*Message, error) {
	release, err := composer.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	conv.Append(RoleUser, prompt, Meta{})
	bubble := conv.Append(RoleAssistant, "", Meta{})

	if err := s.stream(ctx, conv.UserID(), prompt, bubble); err != nil {
		s.logger().WarnContext(ctx, "chat: stream failed",
			"user_id", conv.UserID(), "message_id", bubble.ID(), "error", err)
		bubble.fail(s.notice())
	}
	m := bubble.Message()
	return &m, nil
}

func (s *Streamer) stream(ctx context.Context, userID, prompt string, target *Bubble) error {
	body, err := json.Marshal(map[string]string{"text": prompt})
	if err != nil {
		return fmt.Errorf("chat: encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(userID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chat: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	kit.Propagate(ctx, req.Header)

	resp, err := s.client().Do(req)
	if err != nil {
		return fmt.Errorf("chat: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chat: post: status %d", resp.StatusCode)
	}

	// Text is taken from every block whatever its event name; "done" then
	// ends the stream and "error" fails it. The [DONE] sentinel carries no
	// text.
	var acc strings.Builder
	return sse.Read(ctx, resp.Body, func(f sse.Frame) error {
		if f.Event == "error" {
			var p struct {
				Message string `json:"message"`
			}
			if json.Unmarshal([]byte(f.Data), &p) != nil || p.Message == "" {
				p.Message = f.Data
			}
			return &upstreamError{message: p.Message}
		}
		if f.Data != sse.DoneSentinel {
			if delta := sse.ExtractText(f.Data); delta != "" {
				acc.WriteString(delta)
				target.setText(acc.String())
				target.Replace(markdown.Render(acc.String()))
			}
		}
		if f.Event == "done" {
			return sse.ErrStop
		}
		return nil
	})
}

func (s *Streamer) endpoint(userID string) string {
	if userID == "" {
		return s.Endpoint
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return s.Endpoint
	}
	q := u.Query()
	if q.Get("user_id") == "" {
		q.Set("user_id", userID)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (s *Streamer) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *Streamer) notice() string {
	if s.FallbackNotice != "" {
		return s.FallbackNotice
	}
	return DefaultFallbackNotice
}

func (s *Streamer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
