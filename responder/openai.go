package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hazyhaar/sugarbuddy/guard"
	"github.com/hazyhaar/sugarbuddy/history"
	"github.com/hazyhaar/sugarbuddy/sse"
)

// OpenAIConfig configures an OpenAI-compatible chat completions upstream.
type OpenAIConfig struct {
	BaseURL      string // e.g. https://api.openai.com/v1
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float64
	// Client defaults to http.DefaultClient; streams rely on ctx for cancellation.
	Client *http.Client
}

// OpenAI streams replies from POST {base}/chat/completions.
type OpenAI struct {
	cfg OpenAIConfig
}

// NewOpenAI validates cfg and returns a responder.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if err := guard.ValidateHTTPURL(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("responder: base url: %w", err)
	}
	if cfg.Model == "" {
		return nil, errors.New("responder: model is required")
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAI{cfg: cfg}, nil
}

type completionRequest struct {
	Model       string                `json:"model"`
	Messages    []history.ChatMessage `json:"messages"`
	Temperature float64               `json:"temperature,omitempty"`
	Stream      bool                  `json:"stream"`
}

type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Stream implements Responder.
func (o *OpenAI) Stream(ctx context.Context, req Request, emit func(string) error) error {
	msgs := history.ToMessages(nil, o.cfg.SystemPrompt)
	msgs = append(msgs, req.History...)
	msgs = append(msgs, history.ChatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(completionRequest{
		Model:       o.cfg.Model,
		Messages:    msgs,
		Temperature: o.cfg.Temperature,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("responder: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("responder: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if o.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.cfg.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("responder: upstream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("responder: upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return sse.Read(ctx, resp.Body, func(f sse.Frame) error {
		if f.Data == sse.DoneSentinel {
			return sse.ErrStop
		}
		var chunk completionChunk
		if err := json.Unmarshal([]byte(f.Data), &chunk); err != nil {
			return nil
		}
		if chunk.Error != nil {
			return fmt.Errorf("responder: upstream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		if c := chunk.Choices[0].Delta.Content; c != "" {
			if err := emit(c); err != nil {
				return err
			}
		}
		if chunk.Choices[0].FinishReason != "" {
			return sse.ErrStop
		}
		return nil
	})
}
