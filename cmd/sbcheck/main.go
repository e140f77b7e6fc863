// Command sbcheck checks a running SugarBuddy instance from the terminal.
//
//	sbcheck history          last five visible chat turns
//	sbcheck state            state stream until a chat_message or state_error
//	sbcheck snapshot         resolve the six records and report the winning tier
//	sbcheck chat <text>      stream a reply, printing every re-render
//
// BASE_URL (default http://127.0.0.1:8000) and USER_ID select the target.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hazyhaar/sugarbuddy/chat"
	"github.com/hazyhaar/sugarbuddy/history"
	"github.com/hazyhaar/sugarbuddy/records"
	"github.com/hazyhaar/sugarbuddy/resolver"
	"github.com/hazyhaar/sugarbuddy/sse"
)

var (
	tagStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#26a69a"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7b8794"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#d9480f"))
)

type checker struct {
	base    string
	userID  string
	timeout time.Duration
	client  *http.Client
	out     io.Writer
}

func main() {
	timeout := flag.Duration("timeout", 15*time.Second, "how long to wait on streams")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: sbcheck [-timeout 15s] history|state|snapshot|chat <text>")
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	p := &checker{
		base:    strings.TrimRight(env("BASE_URL", "http://127.0.0.1:8000"), "/"),
		userID:  env("USER_ID", "u_demo_young_male"),
		timeout: *timeout,
		client:  &http.Client{},
		out:     os.Stdout,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "history":
		err = p.history(ctx)
	case "state":
		err = p.state(ctx)
	case "snapshot":
		err = p.snapshot(ctx)
	case "chat":
		err = p.chat(ctx, strings.Join(flag.Args()[1:], " "))
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error:"), err)
		os.Exit(1)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (p *checker) tag(name string) string { return tagStyle.Render("[" + name + "]") }

func (p *checker) url(path string) string {
	return p.base + path + "?user_id=" + url.QueryEscape(p.userID)
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}

func (p *checker) history(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url("/api/chat/history"), nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("history: status %d", resp.StatusCode)
	}
	var body struct {
		Messages []history.Record `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("history: decode: %w", err)
	}
	fmt.Fprintf(p.out, "%s %d messages\n", p.tag("history"), len(body.Messages))
	msgs := body.Messages
	if len(msgs) > 5 {
		msgs = msgs[len(msgs)-5:]
	}
	for _, m := range msgs {
		fmt.Fprintf(p.out, "  - %-9s visible=%t text=%s\n", m.Role, m.Visible, clip(m.Content, 80))
	}
	return nil
}

func (p *checker) state(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url("/api/state/stream"), nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "%s connecting to %s for %s ...\n", p.tag("sse"), p.base+"/api/state/stream", p.timeout)
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("state: status %d", resp.StatusCode)
	}

	n := 0
	err = sse.Read(ctx, resp.Body, func(f sse.Frame) error {
		if f.Data == "" && f.Event == "message" {
			return nil // keep-alive
		}
		n++
		fmt.Fprintf(p.out, "%s %s %s\n", p.tag("sse"), f.Event, mutedStyle.Render(clip(f.Data, 120)))
		if f.Event == "chat_message" || f.Event == "state_error" {
			return sse.ErrStop
		}
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintf(p.out, "%s timeout after %d events\n", p.tag("sse"), n)
		return nil
	}
	return err
}

func (p *checker) snapshot(ctx context.Context) error {
	r := resolver.New(resolver.Config{BaseURL: p.base})
	snap := records.NewSnapshot(p.userID)
	tier := r.Resolve(ctx, snap)
	set := snap.Copy()

	fmt.Fprintf(p.out, "%s user=%s tier=%s records=%d/%d\n", p.tag("snapshot"), p.userID, tier, set.Present(), len(records.All))
	for _, n := range records.All {
		state := errStyle.Render("absent")
		if set[n] != nil {
			state = fmt.Sprintf("%d keys", len(set[n]))
		}
		fmt.Fprintf(p.out, "  - %-15s %s\n", n, state)
	}
	for _, line := range []struct{ label, text string }{
		{"health", set.HealthSummary()},
		{"diet", set.DietSummary()},
		{"events", set.EventDigest()},
	} {
		if line.text != "" {
			fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render(line.label+":"), clip(line.text, 100))
		}
	}
	return nil
}

func (p *checker) chat(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("chat: text is required")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conv := chat.NewConversation(p.userID, nil)
	renders := 0
	stop := conv.Observe(func(m chat.Message) {
		if m.Role != chat.RoleAssistant || m.HTML == "" {
			return
		}
		renders++
		fmt.Fprintf(p.out, "%s #%d %s\n", p.tag("render"), renders, clip(chat.PlainText(m.HTML), 120))
	})
	defer stop()

	s := &chat.Streamer{Endpoint: p.base + "/api/chat/stream", Client: p.client}
	msg, err := s.StreamReply(ctx, conv, &chat.Composer{}, text)
	if err != nil {
		return err
	}
	if msg.Failed {
		return fmt.Errorf("chat: stream failed, bubble shows %q", msg.Text)
	}
	fmt.Fprintf(p.out, "%s %d renders, %d chars\n", p.tag("done"), renders, len([]rune(msg.Text)))
	return nil
}
