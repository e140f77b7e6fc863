package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/sugarbuddy/idgen"
)

// sseServer answers POST /api/chat/stream with the given chunks, flushing
// after each one.
func sseServer(t *testing.T, chunks ...string) (*httptest.Server, *string) {
	t.Helper()
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotPrompt = body.Text + "|" + r.URL.Query().Get("user_id")

		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, c := range chunks {
			io.WriteString(w, c)
			fl.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &gotPrompt
}

func TestStreamReply_AccumulatesDeltas(t *testing.T) {
	srv, prompt := sseServer(t, `data: {"delta":"Hel"}`+"\n\n", `data: {"delta":"lo"}`+"\n\n")
	conv := NewConversation("u1", idgen.Sequence("m"))

	var renders []string
	conv.Observe(func(m Message) {
		if m.Role == RoleAssistant {
			renders = append(renders, m.HTML)
		}
	})

	s := &Streamer{Endpoint: srv.URL + "/api/chat/stream", Client: srv.Client()}
	var composer Composer
	msg, err := s.StreamReply(context.Background(), conv, &composer, "hi")
	if err != nil {
		t.Fatal(err)
	}

	if msg.Text != "Hello" || msg.HTML != "<p>Hello</p>" || msg.Failed {
		t.Fatalf("final message: %+v", msg)
	}
	if *prompt != "hi|u1" {
		t.Errorf("posted %q", *prompt)
	}
	// WHAT: every delta triggers a full re-render of the accumulator.
	want := []string{"", "<p>Hel</p>", "<p>Hello</p>"}
	if strings.Join(renders, ",") != strings.Join(want, ",") {
		t.Errorf("renders: %q, want %q", renders, want)
	}
	msgs := conv.Messages()
	if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[0].Text != "hi" {
		t.Errorf("conversation: %+v", msgs)
	}
	if !composer.Enabled() {
		t.Error("composer must be re-enabled")
	}
}

func TestStreamReply_TextFromEveryEvent(t *testing.T) {
	// WHAT: text rides on custom and done events too; the sentinel does not.
	srv, _ := sseServer(t,
		"event: message\ndata: {\"delta\":\"早\"}\n\n",
		"event: interrupt\ndata: {\"text\":\"餐\"}\n\n",
		"event: done\ndata: {\"answer\":\"好\"}\n\n",
		"data: {\"delta\":\"after done\"}\n\n")
	conv := NewConversation("u1", nil)
	s := &Streamer{Endpoint: srv.URL, Client: srv.Client()}
	var composer Composer
	msg, err := s.StreamReply(context.Background(), conv, &composer, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text != "早餐好" || msg.Failed {
		t.Fatalf("message: %+v", msg)
	}

	srv, _ = sseServer(t, `data: {"delta":"ok"}`+"\n\n", "event: done\ndata: [DONE]\n\n")
	s = &Streamer{Endpoint: srv.URL, Client: srv.Client()}
	msg, _ = s.StreamReply(context.Background(), conv, &composer, "hi")
	if msg.Text != "ok" {
		t.Errorf("sentinel leaked into text: %q", msg.Text)
	}
}

func TestStreamReply_MarkdownAcrossDeltas(t *testing.T) {
	srv, _ := sseServer(t,
		"data: {\"text\":\"### 建议\\n- **少\"}\n\n",
		"data: {\"text\":\"糖**\"}\n\n",
		"event: done\ndata: [DONE]\n\n",
	)
	conv := NewConversation("u1", nil)
	s := &Streamer{Endpoint: srv.URL, Client: srv.Client()}
	msg, err := s.StreamReply(context.Background(), conv, &Composer{}, "q")
	if err != nil {
		t.Fatal(err)
	}
	if msg.HTML != "<h3>建议</h3>\n<ul><li><strong>少糖</strong></li></ul>" {
		t.Errorf("html: %q", msg.HTML)
	}
	if strings.Contains(msg.Text, "DONE") {
		t.Error("done marker leaked into the reply")
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestStreamReply_ImmediateError(t *testing.T) {
	conv := NewConversation("u1", nil)
	var composer Composer
	s := &Streamer{Endpoint: "http://backend.invalid/api/chat/stream", Client: &http.Client{Transport: failingTransport{}}}

	msg, err := s.StreamReply(context.Background(), conv, &composer, "hello <b>")
	if err != nil {
		t.Fatal(err)
	}

	msgs := conv.Messages()
	if len(msgs) != 2 {
		t.Fatalf("want exactly two bubbles, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].HTML != "hello &lt;b&gt;" {
		t.Errorf("user bubble: %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Text != DefaultFallbackNotice || !msgs[1].Failed {
		t.Errorf("assistant bubble: %+v", msgs[1])
	}
	if msg.HTML != DefaultFallbackNotice {
		t.Errorf("notice must be plain text: %q", msg.HTML)
	}
	if !composer.Enabled() {
		t.Error("composer must be re-enabled after a failure")
	}
}

func TestStreamReply_NoticeIsEscaped(t *testing.T) {
	conv := NewConversation("u1", nil)
	s := &Streamer{
		Endpoint:       "http://x.invalid",
		Client:         &http.Client{Transport: failingTransport{}},
		FallbackNotice: "**offline** <now>",
	}
	msg, _ := s.StreamReply(context.Background(), conv, &Composer{}, "p")
	if msg.HTML != "**offline** &lt;now&gt;" {
		t.Errorf("notice must not be Markdown-rendered: %q", msg.HTML)
	}
}

func TestStreamReply_ErrorStatusAndEvent(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer bad.Close()

	conv := NewConversation("u1", nil)
	s := &Streamer{Endpoint: bad.URL, Client: bad.Client()}
	if msg, _ := s.StreamReply(context.Background(), conv, &Composer{}, "p"); !msg.Failed {
		t.Error("non-2xx status must fail the bubble")
	}

	// WHAT: partial text is discarded when the stream reports an error.
	srv, _ := sseServer(t, `data: {"delta":"partial"}`+"\n\n", `event: error`+"\n"+`data: {"message":"upstream down"}`+"\n\n")
	s = &Streamer{Endpoint: srv.URL, Client: srv.Client()}
	msg, _ := s.StreamReply(context.Background(), conv, &Composer{}, "p")
	if !msg.Failed || msg.Text != DefaultFallbackNotice {
		t.Errorf("error event: %+v", msg)
	}
}

func TestStreamReply_ComposerBusy(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"delta":"x"}`+"\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	conv := NewConversation("u1", nil)
	var composer Composer
	s := &Streamer{Endpoint: srv.URL, Client: srv.Client()}

	started := make(chan struct{})
	var once sync.Once
	conv.Observe(func(m Message) {
		if m.Text == "x" {
			once.Do(func() { close(started) })
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.StreamReply(context.Background(), conv, &composer, "first")
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first stream never rendered")
	}
	if composer.Enabled() {
		t.Error("composer should be disabled while streaming")
	}
	if _, err := s.StreamReply(context.Background(), conv, &composer, "second"); !errors.Is(err, ErrComposerBusy) {
		t.Fatalf("got %v, want ErrComposerBusy", err)
	}
	if conv.Len() != 2 {
		t.Errorf("busy call must not touch the conversation, len=%d", conv.Len())
	}
	release <- struct{}{}
	<-done
}

func TestComposer_ReleaseIdempotent(t *testing.T) {
	var c Composer
	release, err := c.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	release()
	release()
	if !c.Enabled() {
		t.Fatal("composer should be enabled")
	}
	r2, err := c.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	release() // stale release must not free the new holder
	if c.Enabled() {
		t.Fatal("stale release re-enabled the composer")
	}
	r2()
}

func TestHandleStateMessage(t *testing.T) {
	conv := NewConversation("u1", nil)
	cases := []struct {
		data string
		want bool
	}{
		{`{"role":"assistant","text":"记得散步","meta":{"mode":"proactive"}}`, true},
		{`{"role":"user","text":"我吃了","meta":{"mode":"proactive"}}`, true},
		{`{"role":"system","text":"odd","meta":{"mode":"proactive"}}`, true},
		{`{"role":"assistant","text":"echo","meta":{"mode":"passive"}}`, false},
		{`{"role":"assistant","text":"","meta":{"mode":"proactive"}}`, false},
		{`{"user_id":"u1","role":"assistant","text":"own","meta":{"mode":"proactive"}}`, true},
		{`{"user_id":"u2","role":"assistant","text":"private note for u2","meta":{"mode":"proactive"}}`, false},
		{`not json`, false},
	}
	for _, tc := range cases {
		if got := HandleStateMessage(conv, tc.data); got != tc.want {
			t.Errorf("%s: got %v", tc.data, got)
		}
	}
	msgs := conv.Messages()
	if len(msgs) != 4 {
		t.Fatalf("len: %d", len(msgs))
	}
	if msgs[1].Role != RoleUser || msgs[2].Role != RoleAssistant {
		t.Errorf("roles: %s %s", msgs[1].Role, msgs[2].Role)
	}
	for _, m := range msgs {
		if m.Meta.Mode != ModeProactive {
			t.Errorf("mode: %+v", m)
		}
	}
}

func TestProactiveListener_Listen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") != "u1" {
			http.Error(w, "bad user", 400)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: profile_update\ndata: {}\n\n")
		io.WriteString(w, "event: chat_message\ndata: {\"role\":\"assistant\",\"text\":\"passive\",\"meta\":{\"mode\":\"passive\"}}\n\n")
		io.WriteString(w, "event: chat_message\ndata: {\"role\":\"assistant\",\"text\":\"**hi**\",\"meta\":{\"mode\":\"proactive\"}}\n\n")
	}))
	defer srv.Close()

	conv := NewConversation("u1", nil)
	p := &ProactiveListener{BaseURL: srv.URL, Client: srv.Client()}
	if err := p.Listen(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	msgs := conv.Messages()
	if len(msgs) != 1 || msgs[0].Text != "**hi**" || msgs[0].HTML != "**hi**" {
		t.Fatalf("got %+v", msgs)
	}
}

func TestTranscriptAndPlainText(t *testing.T) {
	conv := NewConversation("u1", idgen.Sequence("m"))
	conv.Append(RoleUser, "早餐吃什么", Meta{})
	b := conv.Append(RoleAssistant, "", Meta{})
	b.Replace("<h3>建议</h3>\n<ul><li><strong>燕麦</strong></li><li>鸡蛋</li></ul>")

	md, err := Transcript(conv)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"## user", "早餐吃什么", "## assistant", "### 建议", "**燕麦**", "鸡蛋"} {
		if !strings.Contains(md, want) {
			t.Errorf("transcript missing %q:\n%s", want, md)
		}
	}

	if got := PlainText("<p>a<br>b</p>\n<ul><li>c</li></ul>"); got != "a\nb\nc" {
		t.Errorf("PlainText: %q", got)
	}
}
