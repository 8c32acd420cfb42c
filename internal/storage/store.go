package storage

import (
	"context"
	"path/filepath"
	"strings"
)

// DerivedName maps a remote log file name to its local file name. The .gz
// suffix is dropped; when byType is set and the file has a log type, the
// shared "<type>.log" file is used instead.
func DerivedName(file, logType string, byType bool) string {
	if byType && logType != "" {
		return logType + ".log"
	}
	return strings.TrimSuffix(file, ".gz")
}

// Path returns the local destination of a derived name.
func Path(root, solution, derived string) string {
	return filepath.Join(root, solution, derived)
}

// LogStore appends decompressed log content to local files.
type LogStore interface {
	// Append writes data to the end of the solution's file and returns the
	// number of bytes written.
	Append(ctx context.Context, solution, name string, data []byte) (int64, error)

	// Path resolves the destination of a derived name.
	Path(solution, name string) string

	// Root returns the target root directory.
	Root() string
}

// Archive keeps a copy of the raw compressed objects.
type Archive interface {
	// Put stores data under solution/date/name.
	Put(ctx context.Context, solution, date, name string, data []byte) error

	// Key returns the object key Put uses for solution/date/name.
	Key(solution, date, name string) string

	// URI returns the canonical URI for the given key.
	URI(key string) string

	// Close releases the underlying bucket.
	Close() error
}
