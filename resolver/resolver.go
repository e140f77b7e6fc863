// Package resolver loads a user's six logical records by trying three
// progressively less structured data sources: a manifest, per-record
// endpoints, then static files.
//
// Resolve never reports an error. Transport failures, non-2xx statuses,
// malformed JSON and null records all collapse into "this record is absent".
package resolver

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hazyhaar/sugarbuddy/records"
)

// DefaultDataPathPrefix is where per-user static files live.
const DefaultDataPathPrefix = "/data/users/"

// Tier identifies the source that produced a snapshot.
type Tier int

const (
	TierNone Tier = iota
	TierManifest
	TierEndpoints
	TierStatic
)

func (t Tier) String() string {
	switch t {
	case TierManifest:
		return "manifest"
	case TierEndpoints:
		return "endpoints"
	case TierStatic:
		return "static"
	default:
		return "none"
	}
}

// Config configures a Resolver.
type Config struct {
	// BaseURL of the companion API, e.g. "http://127.0.0.1:8000".
	BaseURL string
	// DataPathPrefix of the static-file tier. Default: /data/users/.
	DataPathPrefix string
	// Client used for every fetch. Default: http.DefaultClient, so fetches
	// are bounded only by the transport and the caller's context.
	Client *http.Client
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.DataPathPrefix == "" {
		c.DataPathPrefix = DefaultDataPathPrefix
	}
	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Resolver fetches records from the companion API.
type Resolver struct {
	baseURL    string
	dataPrefix string
	client     *http.Client
	logger     *slog.Logger
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	cfg.defaults()
	return &Resolver{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		dataPrefix: cfg.DataPathPrefix,
		client:     cfg.Client,
		logger:     cfg.Logger,
	}
}

// Resolve updates snap from the first tier that yields data and reports
// which tier won. If every tier comes back empty the snapshot ends up with
// whatever the static tier found, which may be nothing.
func (r *Resolver) Resolve(ctx context.Context, snap *records.UserSnapshot) Tier {
	userID := snap.UserID()
	log := r.logger.With("user_id", userID)

	set, err := r.manifestTier(ctx, userID)
	if err == nil {
		snap.ReplaceAll(set)
		log.InfoContext(ctx, "resolver: snapshot resolved", "tier", TierManifest.String(), "records", set.Present())
		return TierManifest
	}
	log.WarnContext(ctx, "resolver: tier abandoned", "tier", TierManifest.String(), "error", err)
	if ctx.Err() != nil {
		return TierNone
	}

	if set = r.endpointTier(ctx, userID); set.Any() {
		snap.ReplaceAll(set)
		log.InfoContext(ctx, "resolver: snapshot resolved", "tier", TierEndpoints.String(), "records", set.Present())
		return TierEndpoints
	}
	log.WarnContext(ctx, "resolver: tier abandoned", "tier", TierEndpoints.String(), "error", "no records")
	if ctx.Err() != nil {
		return TierNone
	}

	n := r.staticTier(ctx, snap)
	log.InfoContext(ctx, "resolver: snapshot resolved", "tier", TierStatic.String(), "records", n)
	return TierStatic
}

// manifestTier fails as a whole only when the manifest itself cannot be
// fetched; individual record failures become nil.
func (r *Resolver) manifestTier(ctx context.Context, userID string) (records.Set, error) {
	var m Manifest
	if err := r.getJSON(ctx, "/api/local/manifest/"+url.PathEscape(userID), &m); err != nil {
		return records.Set{}, err
	}
	fallback := StaticBase(r.dataPrefix, userID)
	return r.fetchAll(ctx, userID, func(n records.Name) string {
		return m.urlFor(n, fallback)
	}), nil
}

func (r *Resolver) endpointTier(ctx context.Context, userID string) records.Set {
	return r.fetchAll(ctx, userID, func(n records.Name) string {
		return "/api/local/" + n.String() + "/" + url.PathEscape(userID)
	})
}

// staticTier fills each record independently and returns how many resolved.
func (r *Resolver) staticTier(ctx context.Context, snap *records.UserSnapshot) int {
	base := StaticBase(r.dataPrefix, snap.UserID())
	set := r.fetchAll(ctx, snap.UserID(), func(n records.Name) string {
		return base + n.DefaultFilename()
	})
	for _, n := range records.All {
		snap.Fill(n, set[n])
	}
	return set.Present()
}

// fetchAll fetches the six records concurrently. One record's failure never
// affects the others.
func (r *Resolver) fetchAll(ctx context.Context, userID string, ref func(records.Name) string) records.Set {
	var (
		set records.Set
		wg  sync.WaitGroup
	)
	for _, n := range records.All {
		wg.Add(1)
		go func(n records.Name) {
			defer wg.Done()
			rec, err := r.getRecord(ctx, ref(n))
			if err != nil {
				r.logger.DebugContext(ctx, "resolver: record unavailable",
					"user_id", userID, "record", n.String(), "error", err)
				return
			}
			set[n] = rec
		}(n)
	}
	wg.Wait()
	return set
}
