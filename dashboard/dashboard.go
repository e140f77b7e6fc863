// Package dashboard serves the SugarBuddy web shell along with the
// server-side halves of its two live features: the resolved user snapshot
// and the streaming chat renderer.
package dashboard

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/sugarbuddy/chat"
	"github.com/hazyhaar/sugarbuddy/guard"
	"github.com/hazyhaar/sugarbuddy/observability"
	"github.com/hazyhaar/sugarbuddy/records"
	"github.com/hazyhaar/sugarbuddy/resolver"
)

//go:embed static
var staticFS embed.FS

// Config configures a Dashboard.
type Config struct {
	// BackendURL of the companion API.
	BackendURL     string
	DefaultUserID  string
	FallbackNotice string
	// Client for snapshot fetches. Default: http.DefaultClient.
	Client *http.Client
	// StreamClient for chat and proactive streams. Default: http.DefaultClient.
	StreamClient *http.Client
	// MCP mounts /mcp when true.
	MCP bool
	// MaxSessions caps the per-user conversations kept in memory. Past the
	// cap the least recently used idle session is dropped. Default: 1000.
	MaxSessions int
	// Metrics records snapshot tiers. Optional.
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Dashboard holds per-user snapshots and conversations.
type Dashboard struct {
	cfg       Config
	logger    *slog.Logger
	refresher *resolver.Refresher
	streamer  *chat.Streamer
	proactive *chat.ProactiveListener
	policy    *bluemonday.Policy

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	clock    uint64
}

type session struct {
	conv     *chat.Conversation
	composer chat.Composer

	// Guarded by Dashboard.mu.
	lastUsed   uint64
	relays     int
	stopListen context.CancelFunc
}

// New creates a Dashboard. Close stops its background listeners.
func New(cfg Config) *Dashboard {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	base := strings.TrimRight(cfg.BackendURL, "/")
	d := &Dashboard{
		cfg:    cfg,
		logger: cfg.Logger,
		refresher: resolver.NewRefresher(resolver.New(resolver.Config{
			BaseURL: base,
			Client:  cfg.Client,
			Logger:  cfg.Logger,
		})),
		streamer: &chat.Streamer{
			Endpoint:       base + "/api/chat/stream",
			Client:         cfg.StreamClient,
			FallbackNotice: cfg.FallbackNotice,
			Logger:         cfg.Logger,
		},
		proactive: &chat.ProactiveListener{
			BaseURL: base,
			Client:  cfg.StreamClient,
			Logger:  cfg.Logger,
		},
		policy:   newPolicy(),
		sessions: make(map[string]*session),
	}
	d.refresher.OnRefreshed = func(userID string, tier resolver.Tier, set records.Set) {
		d.logger.Debug("dashboard: snapshot refreshed", "user_id", userID, "tier", tier.String(), "records", set.Present())
		d.cfg.Metrics.Record(observability.MetricSnapshotTier, float64(set.Present()), "count",
			map[string]string{"tier": tier.String()})
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Close stops every proactive listener.
func (d *Dashboard) Close() { d.cancel() }

// Routes mounts the shell, the /ui endpoints and, when enabled, /mcp.
func (d *Dashboard) Routes(r chi.Router) {
	sub, _ := fs.Sub(staticFS, "static")
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		data, err := fs.ReadFile(sub, "index.html")
		if err != nil {
			http.Error(w, "shell missing", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(data)
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))

	r.Get("/ui/config", d.handleConfig)
	r.Get("/ui/snapshot", d.handleSnapshot)
	r.Post("/ui/chat/stream", d.handleChatStream)
	r.Get("/ui/chat/proactive", d.handleProactive)
	r.Get("/ui/chat/messages", d.handleMessages)
	r.Get("/ui/chat/export", d.handleExport)

	if d.cfg.MCP {
		r.Handle("/mcp", d.MCPHandler())
	}
}

func (d *Dashboard) userID(r *http.Request) (string, error) {
	id := r.URL.Query().Get("user_id")
	if id == "" {
		id = d.cfg.DefaultUserID
	}
	if err := guard.ValidateIdentifier(id); err != nil {
		return "", err
	}
	return id, nil
}

// session returns userID's conversation state, creating it on first use.
func (d *Dashboard) session(userID string) *session {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock++
	s, ok := d.sessions[userID]
	if !ok {
		if len(d.sessions) >= d.cfg.MaxSessions {
			d.evictLocked()
		}
		s = &session{conv: chat.NewConversation(userID, nil)}
		d.sessions[userID] = s
	}
	s.lastUsed = d.clock
	return s
}

// evictLocked drops the least recently used session that has no relay and
// no reply in flight.
func (d *Dashboard) evictLocked() {
	var (
		victim string
		oldest uint64
	)
	for id, s := range d.sessions {
		if s.relays > 0 || !s.composer.Enabled() {
			continue
		}
		if victim == "" || s.lastUsed < oldest {
			victim, oldest = id, s.lastUsed
		}
	}
	if victim != "" {
		delete(d.sessions, victim)
		d.logger.Debug("dashboard: session evicted", "user_id", victim, "sessions", len(d.sessions))
	}
}

// attachRelay counts a proactive relay on s. The first relay starts the
// user's state stream listener; the returned detach stops it when the last
// relay goes away.
func (d *Dashboard) attachRelay(s *session) (detach func()) {
	d.mu.Lock()
	s.relays++
	if s.relays == 1 {
		ctx, cancel := context.WithCancel(d.ctx)
		s.stopListen = cancel
		go d.proactive.Run(ctx, s.conv)
	}
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			s.relays--
			if s.relays == 0 && s.stopListen != nil {
				s.stopListen()
				s.stopListen = nil
			}
		})
	}
}
