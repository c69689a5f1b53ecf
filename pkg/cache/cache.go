// Package cache stores finished analysis results keyed by a content
// fingerprint of the raw request text. Entries are write-once: the first
// verdict for a given fingerprint is authoritative and later writes for the
// same fingerprint are rejected, so a result can never be silently replaced.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrMiss is returned by Get when no entry exists for the fingerprint.
var ErrMiss = errors.New("cache: miss")

// Fingerprint derives the content address for a request: SHA-256 over the
// case-folded text. Case variants of the same payload share one entry;
// any other difference, including whitespace, yields a distinct address.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(text)))
	return hex.EncodeToString(sum[:])
}

// Stats is a point-in-time snapshot of store activity.
type Stats struct {
	Entries  int64 `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Writes   int64 `json:"writes"`
	Rejected int64 `json:"rejected"` // write-once conflicts
}

// Store is a write-once result store. Put reports whether the payload was
// stored; false with a nil error means an entry already existed and the
// write was rejected.
type Store interface {
	Get(ctx context.Context, fingerprint string) ([]byte, error)
	Put(ctx context.Context, fingerprint string, payload []byte) (bool, error)
	Delete(ctx context.Context, fingerprint string) (bool, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
