// Package blob stores uploaded statements and rendered diagrams.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("blob: object not found")

// Store persists opaque objects under slash-separated keys.
type Store interface {
	// PutObject writes data under key and returns the stored path.
	PutObject(ctx context.Context, data []byte, key string) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
	DeleteObject(ctx context.Context, path string) error
	// GetSignedURL returns a URL granting read access to path for ttl.
	GetSignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// InputKey is the object key of a run's uploaded statement.
func InputKey(runID string) string {
	return fmt.Sprintf("runs/%s/input.pdf", runID)
}

// DiagramKey is the object key of the diagram rendered on the given
// verification attempt.
func DiagramKey(runID string, attempt int, mimeType string) string {
	return fmt.Sprintf("runs/%s/diagram-%d%s", runID, attempt, extensionFor(mimeType))
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// cleanKey normalizes key and rejects keys that escape the store root.
func cleanKey(key string) (string, error) {
	k := strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(key)), "/")
	if k == "" || k == "." {
		return "", eris.Errorf("blob: invalid key %q", key)
	}
	if strings.Contains(key, "..") {
		return "", eris.Errorf("blob: key %q escapes the store root", key)
	}
	return k, nil
}
