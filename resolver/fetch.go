package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hazyhaar/sugarbuddy/guard"
	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/records"
)

// getJSON fetches ref (absolute URL or path relative to BaseURL) and decodes
// the body into v.
func (r *Resolver) getJSON(ctx context.Context, ref string, v any) error {
	u := r.absolute(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("resolver: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	kit.Propagate(ctx, req.Header)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("resolver: GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: u, Code: resp.StatusCode}
	}
	body, err := guard.LimitedReadAll(resp.Body, guard.MaxResponseBody)
	if err != nil {
		return fmt.Errorf("resolver: read %s: %w", u, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("resolver: decode %s: %w", u, err)
	}
	return nil
}

// getRecord fetches one logical record. JSON null and non-object bodies are
// reported as errAbsent.
func (r *Resolver) getRecord(ctx context.Context, ref string) (records.Record, error) {
	var raw json.RawMessage
	if err := r.getJSON(ctx, ref, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errAbsent
	}
	var rec records.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("resolver: decode record: %w", err)
	}
	return rec, nil
}

func (r *Resolver) absolute(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return r.baseURL + ref
}
