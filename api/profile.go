package api

import (
	"fmt"
	"net/http"

	"github.com/hazyhaar/sugarbuddy/guard"
	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/statehub"
	"github.com/hazyhaar/sugarbuddy/userdata"
)

type patchRequest struct {
	UserID string `json:"user_id"`
	userdata.Patch
}

type revokeRequest struct {
	UserID string `json:"user_id"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ProfilePayload is the body of a profile_update event.
type ProfilePayload struct {
	UserID  string           `json:"user_id"`
	Profile userdata.Profile `json:"profile"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	prof, err := s.Users.Profile(userID)
	if err != nil {
		kit.WriteError(w, statusFor(err), err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, prof)
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := kit.DecodeJSON(r, &req); err != nil {
		kit.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	userID, err := s.bodyUserID(r, req.UserID)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	prof, err := s.Users.PatchProfile(userID, req.Patch)
	if err != nil {
		kit.WriteError(w, statusFor(err), err)
		return
	}
	logger(r).Info("api: profile patched", "user_id", userID, "path", req.Path, "layer", req.Layer)
	s.publishProfile(userID, prof)
	kit.WriteJSON(w, http.StatusOK, prof)
}

func (s *Server) handleRevokeProfile(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := kit.DecodeJSON(r, &req); err != nil {
		kit.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	userID, err := s.bodyUserID(r, req.UserID)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	prof, err := s.Users.RevokeField(userID, req.Path, req.Reason)
	if err != nil {
		kit.WriteError(w, statusFor(err), err)
		return
	}
	logger(r).Info("api: profile field revoked", "user_id", userID, "path", req.Path)
	s.publishProfile(userID, prof)
	kit.WriteJSON(w, http.StatusOK, prof)
}

// bodyUserID prefers the id carried in the JSON body over the query string.
func (s *Server) bodyUserID(r *http.Request, fromBody string) (string, error) {
	if fromBody == "" {
		return s.userID(r)
	}
	if err := guard.ValidateIdentifier(fromBody); err != nil {
		return "", fmt.Errorf("user_id: %w", err)
	}
	return fromBody, nil
}

func (s *Server) publishProfile(userID string, prof userdata.Profile) {
	if s.Hub != nil {
		s.Hub.Broadcast(userID, statehub.EventProfileUpdate, ProfilePayload{UserID: userID, Profile: prof})
	}
}
