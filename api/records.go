package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sugarbuddy/guard"
	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/records"
	"github.com/hazyhaar/sugarbuddy/resolver"
)

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	files, err := s.Users.Files(userID)
	if err != nil {
		kit.WriteError(w, statusFor(err), err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, resolver.Manifest{
		Files:    files,
		BasePath: resolver.StaticBase(resolver.DefaultDataPathPrefix, userID),
	})
}

func (s *Server) handleLocalRecord(w http.ResponseWriter, r *http.Request) {
	name, ok := records.Parse(chi.URLParam(r, "name"))
	if !ok {
		kit.WriteError(w, http.StatusBadRequest, fmt.Errorf("unknown record %q", chi.URLParam(r, "name")))
		return
	}
	raw, err := s.Users.Record(chi.URLParam(r, "userID"), name)
	if err != nil {
		kit.WriteError(w, statusFor(err), err)
		return
	}
	writeRaw(w, raw)
}

func (s *Server) handleStaticFile(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	if err := guard.ValidateIdentifier(file); err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	raw, err := s.Users.StaticFile(chi.URLParam(r, "userID"), file)
	if err != nil {
		kit.WriteError(w, statusFor(err), err)
		return
	}
	writeRaw(w, raw)
}

func writeRaw(w http.ResponseWriter, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}
