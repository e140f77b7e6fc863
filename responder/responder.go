// Package responder generates assistant replies for the companion chat
// endpoints, either from a scripted demo or an OpenAI-compatible upstream.
package responder

import (
	"context"
	"fmt"

	"github.com/hazyhaar/sugarbuddy/config"
	"github.com/hazyhaar/sugarbuddy/history"
)

// Request is one chat turn to answer.
type Request struct {
	UserID  string
	Prompt  string
	History []history.ChatMessage // oldest first, excluding Prompt
}

// Responder streams a reply. emit is called once per delta, in order; an
// error from emit aborts the reply.
type Responder interface {
	Stream(ctx context.Context, req Request, emit func(delta string) error) error
}

// New builds the responder selected by cfg.
func New(cfg config.ResponderConfig) (Responder, error) {
	switch cfg.Kind {
	case "", "demo":
		return &Demo{}, nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
		})
	default:
		return nil, fmt.Errorf("responder: unsupported kind %q", cfg.Kind)
	}
}

// Collect runs r and returns the whole reply.
func Collect(ctx context.Context, r Responder, req Request) (string, error) {
	var out []byte
	err := r.Stream(ctx, req, func(d string) error {
		out = append(out, d...)
		return nil
	})
	return string(out), err
}
