package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/statehub"
	"github.com/hazyhaar/sugarbuddy/userdata"
)

// SchedulePayload is the body of a schedule_update event. Schedule is null
// when the user has none.
type SchedulePayload struct {
	UserID   string          `json:"user_id"`
	Schedule json.RawMessage `json:"schedule"`
}

// StateSnapshot returns a statehub snapshot func that greets every new state
// stream subscriber with the user's profile and then their schedule. A
// failed load becomes a state_error event in its place; a missing schedule
// is a schedule_update with a null schedule.
func StateSnapshot(users *userdata.Store) func(userID string) []statehub.Event {
	return func(userID string) []statehub.Event {
		var out []statehub.Event
		if prof, err := users.Profile(userID); err != nil {
			out = append(out, stateError(userID, "profile load failed: "+err.Error()))
		} else {
			out = append(out, statehub.Event{
				Name:    statehub.EventProfileUpdate,
				Payload: ProfilePayload{UserID: userID, Profile: prof},
			})
		}

		sched, err := users.Schedule(userID)
		switch {
		case errors.Is(err, userdata.ErrNotFound):
			sched = nil
		case err != nil:
			return append(out, stateError(userID, "schedule load failed: "+err.Error()))
		}
		return append(out, statehub.Event{
			Name:    statehub.EventScheduleUpdate,
			Payload: SchedulePayload{UserID: userID, Schedule: sched},
		})
	}
}

func stateError(userID, msg string) statehub.Event {
	return statehub.Event{
		Name:    statehub.EventStateError,
		Payload: map[string]string{"user_id": userID, "message": msg},
	}
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		kit.WriteError(w, http.StatusBadRequest, err)
		return
	}
	sched, err := s.Users.Schedule(userID)
	if err != nil {
		kit.WriteError(w, statusFor(err), err)
		return
	}
	writeRaw(w, sched)
}
