package resolver

import (
	"errors"
	"fmt"
)

// ErrRefreshInFlight is returned by Refresher.Refresh when a refresh for the
// same user is already running. The request is dropped, not queued.
var ErrRefreshInFlight = errors.New("resolver: refresh already in flight")

// errAbsent marks a record that decoded as JSON null or as a non-object.
var errAbsent = errors.New("resolver: record absent")

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resolver: GET %s: status %d", e.URL, e.Code)
}
