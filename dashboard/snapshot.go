package dashboard

import (
	"context"
	"errors"
	"net/http"

	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/records"
	"github.com/hazyhaar/sugarbuddy/resolver"
)

// SnapshotView is the body of GET /ui/snapshot.
type SnapshotView struct {
	UserID  string         `json:"user_id"`
	Tier    string         `json:"tier"`
	Skipped bool           `json:"refresh_skipped,omitempty"`
	Records map[string]any `json:"records"`
	Views   map[string]any `json:"views"`
}

// Snapshot refreshes userID's records and returns them. A refresh already
// in flight for the user is not repeated; the current records are returned
// with Skipped set.
func (d *Dashboard) Snapshot(ctx context.Context, userID string) SnapshotView {
	tier, err := d.refresher.Refresh(ctx, userID)
	skipped := errors.Is(err, resolver.ErrRefreshInFlight)
	if skipped {
		tier = d.refresher.LastTier(userID)
	}
	set := d.refresher.Snapshot(userID).Copy()
	return view(userID, tier, skipped, set)
}

func view(userID string, tier resolver.Tier, skipped bool, set records.Set) SnapshotView {
	return SnapshotView{
		UserID:  userID,
		Tier:    tier.String(),
		Skipped: skipped,
		Records: set.Map(),
		Views:   set.Views(),
	}
}

func (d *Dashboard) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, err := d.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	v := d.Snapshot(r.Context(), userID)
	w.Header().Set("X-Snapshot-Tier", v.Tier)
	if v.Skipped {
		w.Header().Set("X-Snapshot-Refresh", "skipped")
	}
	kit.WriteJSON(w, http.StatusOK, v)
}

func (d *Dashboard) handleConfig(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, map[string]string{"default_user_id": d.cfg.DefaultUserID})
}
