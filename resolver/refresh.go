package resolver

import (
	"context"
	"sync"

	"github.com/hazyhaar/sugarbuddy/records"
)

// Refresher owns one UserSnapshot per user and guarantees at most one
// resolution in flight per user.
type Refresher struct {
	resolver *Resolver

	// OnRefreshed runs after every completed refresh, outside the lock.
	OnRefreshed func(userID string, tier Tier, snap records.Set)

	mu       sync.Mutex
	snaps    map[string]*records.UserSnapshot
	inFlight map[string]bool
	lastTier map[string]Tier
}

// NewRefresher creates a Refresher backed by r.
func NewRefresher(r *Resolver) *Refresher {
	return &Refresher{
		resolver: r,
		snaps:    make(map[string]*records.UserSnapshot),
		inFlight: make(map[string]bool),
		lastTier: make(map[string]Tier),
	}
}

// Snapshot returns the snapshot for userID, creating an empty one on first use.
func (f *Refresher) Snapshot(userID string) *records.UserSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked(userID)
}

func (f *Refresher) snapshotLocked(userID string) *records.UserSnapshot {
	s, ok := f.snaps[userID]
	if !ok {
		s = records.NewSnapshot(userID)
		f.snaps[userID] = s
	}
	return s
}

// LastTier reports the tier of the most recent completed refresh.
func (f *Refresher) LastTier(userID string) Tier {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTier[userID]
}

// Refresh resolves userID's snapshot. A concurrent call for the same user
// returns ErrRefreshInFlight immediately.
func (f *Refresher) Refresh(ctx context.Context, userID string) (Tier, error) {
	f.mu.Lock()
	if f.inFlight[userID] {
		f.mu.Unlock()
		return TierNone, ErrRefreshInFlight
	}
	f.inFlight[userID] = true
	snap := f.snapshotLocked(userID)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.inFlight, userID)
		f.mu.Unlock()
	}()

	tier := f.resolver.Resolve(ctx, snap)

	f.mu.Lock()
	f.lastTier[userID] = tier
	f.mu.Unlock()

	if f.OnRefreshed != nil {
		f.OnRefreshed(userID, tier, snap.Copy())
	}
	return tier, nil
}
