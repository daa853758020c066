// Package storage provides the byte-oriented blob store the scoring
// subsystem reads submission and solution files from. Scoring depends only
// on this contract; the physical backend is irrelevant.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Load when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Store is the blob store contract: save/load/delete by key.
type Store interface {
	// Save writes content under key and returns a locator (a URI or an
	// absolute path, depending on backend).
	Save(ctx context.Context, key string, content []byte) (string, error)

	// Load returns the content stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object. It reports whether anything was deleted.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// ExtractKey recovers the storage key from a persisted locator. Locators
// come in two shapes: object-store URIs (s3://bucket/key) and local paths
// containing the /submissions/ marker.
func ExtractKey(locator string) string {
	if after, ok := strings.CutPrefix(locator, "s3://"); ok {
		// Drop the bucket segment.
		if _, key, found := strings.Cut(after, "/"); found {
			return key
		}
		return after
	}
	if strings.HasPrefix(locator, "/") {
		if _, rest, found := strings.Cut(locator, "/submissions/"); found {
			return "submissions/" + rest
		}
	}
	return locator
}
