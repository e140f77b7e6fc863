// Package history stores chat turns per user in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/sugarbuddy/dbopen"
	"github.com/hazyhaar/sugarbuddy/idgen"
)

// Schema is applied by Open and New.
const Schema = `
CREATE TABLE IF NOT EXISTS chat_history (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    visible    INTEGER NOT NULL DEFAULT 1,
    source     TEXT NOT NULL DEFAULT 'user',
    meta       TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history(user_id, created_at, id);
`

// Record is one stored turn.
type Record struct {
	ID      string         `json:"id"`
	TS      string         `json:"ts"`
	Role    string         `json:"role"`
	Content string         `json:"content"`
	Visible bool           `json:"visible"`
	Source  string         `json:"source"`
	Meta    map[string]any `json:"meta"`
}

// Entry describes a turn to append.
type Entry struct {
	Role    string
	Content string
	Hidden  bool
	Source  string // default "user"
	Meta    map[string]any
}

// Store persists chat history.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &Store{db: db, newID: idgen.Default, now: time.Now}, nil
}

// Open opens (creating when needed) the history database at path.
func Open(path string) (*Store, *sql.DB, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, nil, fmt.Errorf("history: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

// Append stores one turn and returns it.
func (s *Store) Append(ctx context.Context, userID string, e Entry) (Record, error) {
	if e.Source == "" {
		e.Source = "user"
	}
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return Record{}, fmt.Errorf("history: encode meta: %w", err)
	}
	now := s.now().UTC()
	rec := Record{
		ID:      s.newID(),
		TS:      now.Format(time.RFC3339Nano),
		Role:    e.Role,
		Content: e.Content,
		Visible: !e.Hidden,
		Source:  e.Source,
		Meta:    e.Meta,
	}
	_, err = dbopen.Exec(ctx, s.db,
		`INSERT INTO chat_history (id, user_id, role, content, visible, source, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, userID, rec.Role, rec.Content, boolInt(rec.Visible), rec.Source, string(meta), now.UnixNano())
	if err != nil {
		return Record{}, fmt.Errorf("history: append: %w", err)
	}
	return rec, nil
}

// Load returns the most recent limit turns for userID, oldest first.
// Hidden turns are included only when all is true.
func (s *Store) Load(ctx context.Context, userID string, limit int, all bool) ([]Record, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, visible, source, meta, created_at FROM (
			SELECT * FROM chat_history
			WHERE user_id = ? AND (? OR visible = 1)
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC`,
		userID, all, limit)
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r       Record
			visible int
			meta    string
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Role, &r.Content, &visible, &r.Source, &meta, &created); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.Visible = visible == 1
		r.TS = time.Unix(0, created).UTC().Format(time.RFC3339Nano)
		if err := json.Unmarshal([]byte(meta), &r.Meta); err != nil || r.Meta == nil {
			r.Meta = map[string]any{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChatMessage is one entry of an LLM prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToMessages turns stored turns into prompt messages, prefixed with the
// non-empty system prompts.
func ToMessages(records []Record, system ...string) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(records)+len(system))
	for _, s := range system {
		if s != "" {
			msgs = append(msgs, ChatMessage{Role: "system", Content: s})
		}
	}
	for _, r := range records {
		role := r.Role
		if role == "" {
			role = "user"
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: r.Content})
	}
	return msgs
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
