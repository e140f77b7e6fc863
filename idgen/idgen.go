// Package idgen provides pluggable ID generation for SugarBuddy services.
//
// Constructors that mint identifiers (chat messages, history rows, requests)
// accept a Generator so tests can pin IDs and production keeps UUIDv7.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, which keeps history rows in insertion order by id.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Hex returns a Generator of n random bytes, hex-encoded. Used for short
// trace IDs where a full UUID is noise in log lines.
func Hex(n int) Generator {
	return func() string {
		b := make([]byte, n)
		if _, err := rand.Read(b); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		return hex.EncodeToString(b)
	}
}

// Sequence returns a deterministic Generator ("<prefix>1", "<prefix>2", ...).
// Not safe for concurrent use; meant for tests.
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return prefix + strconv.Itoa(n)
	}
}

// Default is UUIDv7. Prefixed variants compose on top.
var Default Generator = UUIDv7()

// Domain generators.
var (
	MessageID = Prefixed("msg_", Default)
	RequestID = Prefixed("req_", Default)
	TraceID   = Hex(4)
)
