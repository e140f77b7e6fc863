// Package chat renders a streamed assistant reply into a conversation.
//
// A Conversation is an ordered list of message bubbles. The streaming task
// owns a private accumulator for the in-flight assistant bubble and only
// ever replaces that bubble's rendered HTML; the Composer guarantees no
// second stream writes to the same conversation concurrently.
package chat

import (
	"html"
	"sync"

	"github.com/hazyhaar/sugarbuddy/idgen"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Delivery modes carried in Meta.Mode.
const (
	ModeProactive = "proactive"
	ModePassive   = "passive"
)

// Meta is optional message metadata.
type Meta struct {
	Mode string `json:"mode,omitempty"`
}

// Message is one rendered bubble.
type Message struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	Text   string `json:"text"`
	HTML   string `json:"html"`
	Meta   Meta   `json:"meta"`
	Failed bool   `json:"failed,omitempty"`
}

// Target is the single effect a streaming task has on its bubble.
type Target interface {
	Replace(html string)
}

// Conversation holds the bubbles of one dashboard chat.
type Conversation struct {
	userID string
	newID  idgen.Generator

	mu        sync.Mutex
	msgs      []*Message
	observers map[int]func(Message)
	nextObs   int
}

// NewConversation creates an empty conversation. gen defaults to
// idgen.MessageID.
func NewConversation(userID string, gen idgen.Generator) *Conversation {
	if gen == nil {
		gen = idgen.MessageID
	}
	return &Conversation{userID: userID, newID: gen, observers: make(map[int]func(Message))}
}

// UserID is the user the conversation belongs to.
func (c *Conversation) UserID() string { return c.userID }

// Append adds a bubble whose content is text shown verbatim.
func (c *Conversation) Append(role Role, text string, meta Meta) *Bubble {
	c.mu.Lock()
	m := &Message{ID: c.newID(), Role: role, Text: text, HTML: html.EscapeString(text), Meta: meta}
	c.msgs = append(c.msgs, m)
	snap := *m
	c.mu.Unlock()

	c.notify(snap)
	return &Bubble{conv: c, msg: m}
}

// Messages returns a copy of every bubble in order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = *m
	}
	return out
}

// Len returns the number of bubbles.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// Observe registers fn for every appended or updated bubble. fn runs on the
// writer's goroutine and must not block for long.
func (c *Conversation) Observe(fn func(Message)) (cancel func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Conversation) notify(m Message) {
	c.mu.Lock()
	fns := make([]func(Message), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

// Bubble is a handle on one message. It implements Target.
type Bubble struct {
	conv *Conversation
	msg  *Message
}

// ID of the underlying message.
func (b *Bubble) ID() string { return b.msg.ID }

// Replace swaps the rendered HTML.
func (b *Bubble) Replace(html string) {
	b.update(func(m *Message) { m.HTML = html })
}

// Message returns a copy of the current message.
func (b *Bubble) Message() Message {
	b.conv.mu.Lock()
	defer b.conv.mu.Unlock()
	return *b.msg
}

func (b *Bubble) setText(text string) {
	b.conv.mu.Lock()
	b.msg.Text = text
	b.conv.mu.Unlock()
}

func (b *Bubble) fail(notice string) {
	b.update(func(m *Message) {
		m.Text = notice
		m.HTML = html.EscapeString(notice)
		m.Failed = true
	})
}

func (b *Bubble) update(fn func(*Message)) {
	b.conv.mu.Lock()
	fn(b.msg)
	snap := *b.msg
	b.conv.mu.Unlock()
	b.conv.notify(snap)
}
