package kit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
)

// Headers carried from an incoming request to the upstream calls it causes.
const (
	HeaderRequestID    = "X-Request-ID"
	HeaderForwardedFor = "X-Forwarded-For"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": err} with the given status.
func WriteError(w http.ResponseWriter, code int, err error) {
	WriteJSON(w, code, map[string]string{"error": err.Error()})
}

// QueryInt reads an integer query parameter, falling back to def when it is
// missing or malformed.
func QueryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// DecodeJSON decodes the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Propagate copies the request id and client IP held by ctx onto the
// headers of an upstream request.
func Propagate(ctx context.Context, h http.Header) {
	if id := GetRequestID(ctx); id != "" {
		h.Set(HeaderRequestID, id)
	}
	if ip := GetClientIP(ctx); ip != "" {
		h.Set(HeaderForwardedFor, ip)
	}
}
