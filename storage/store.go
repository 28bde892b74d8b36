package storage

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by Move when the source object is missing.
var ErrObjectNotFound = errors.New("object not found")

// StagingDir is the prefix staged uploads live under until the job moves them.
const StagingDir = "tmp"

// BlobStore is durable file storage addressed by slash separated keys.
type BlobStore interface {
	// Stage writes data under a fresh temporary key and returns that key.
	Stage(ctx context.Context, data []byte, originalName string) (string, error)
	// Move relocates src to dst, overwriting dst.
	Move(ctx context.Context, src, dst string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces an uploaded filename to a safe single path segment.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}

// StagingKey returns a unique temporary key keeping the original extension.
func StagingKey(originalName string) string {
	return path.Join(StagingDir, uuid.NewString()+strings.ToLower(path.Ext(SanitizeName(originalName))))
}

func cleanKey(key string) (string, error) {
	k := path.Clean("/" + key)[1:]
	if k == "" || k == "." {
		return "", errors.New("empty object key")
	}
	return k, nil
}
