// Package guard holds the input safety checks shared by the companion API and
// the dashboard: identifier validation for user ids and record names, path
// traversal guards for the static data tree, bounded reads, and URL checks.
package guard

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxResponseBody is the default cap for HTTP response body reads (4 MiB).
// Record documents are small; anything larger is treated as a failed fetch.
const MaxResponseBody int64 = 4 << 20

// MaxIdentifierLen bounds user ids and record names.
const MaxIdentifierLen = 128

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("guard: path traversal detected")

// ErrInvalidIdentifier is returned for empty, oversized or non [A-Za-z0-9_.-] ids.
var ErrInvalidIdentifier = errors.New("guard: invalid identifier")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("guard: only http and https schemes are allowed")

// ErrBodyTooLarge is returned by LimitedReadAll when the limit is exceeded.
var ErrBodyTooLarge = errors.New("guard: body exceeds limit")

// ValidateIdentifier rejects identifiers unsuitable as file names or URL path
// segments. Allows alphanumeric, underscore, hyphen, and dot; rejects "." and "..".
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if len(s) > MaxIdentifierLen {
		return fmt.Errorf("%w: longer than %d", ErrInvalidIdentifier, MaxIdentifierLen)
	}
	if s == "." || s == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("%w: character %q", ErrInvalidIdentifier, r)
		}
	}
	return nil
}

// SafePath joins base and userInput and verifies the result stays under base.
func SafePath(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if !strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) &&
		cleaned != filepath.Clean(base) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, maxBytes)
	}
	return data, nil
}

// ValidateHTTPURL checks that rawURL is an absolute http(s) URL with a host.
func ValidateHTTPURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("guard: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return fmt.Errorf("guard: URL has no host")
	}
	return nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
