package resolver

import (
	"net/url"
	"strings"

	"github.com/hazyhaar/sugarbuddy/records"
)

// Manifest maps logical record names to filenames, with an optional base
// path for relative entries.
type Manifest struct {
	Files    map[string]string `json:"files"`
	BasePath string            `json:"base_path"`
}

// StaticBase returns the canonical per-user static directory,
// prefix + escaped user id + "/".
func StaticBase(prefix, userID string) string {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + url.PathEscape(userID) + "/"
}

// URLFor derives the URL for one record. Missing entries fall back to
// <name>.json; values starting with "/" or "http" are used as-is.
func (m Manifest) URLFor(name records.Name, userID string) string {
	return m.urlFor(name, StaticBase(DefaultDataPathPrefix, userID))
}

func (m Manifest) urlFor(name records.Name, fallbackBase string) string {
	file := m.Files[name.String()]
	if file == "" {
		file = name.DefaultFilename()
	}
	if strings.HasPrefix(file, "/") || strings.HasPrefix(file, "http") {
		return file
	}
	base := m.BasePath
	if base == "" {
		base = fallbackBase
	}
	return base + file
}
