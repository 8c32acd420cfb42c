package metadata

import (
	"context"
	"log"
	"time"
)

type CatalogConfig struct {
	PostgresDSN string
}

// Writer records processed log files in an external catalog.
type Writer interface {
	RecordFile(ctx context.Context, rec FileRecord) error
	Close() error
}

// FileRecord describes one downloaded and extracted log file.
type FileRecord struct {
	CycleID        string
	Solution       string
	Date           string
	FileName       string
	SourcePath     string
	Destination    string
	ArchiveURI     string
	CompressedSize int64
	ExtractedSize  int64
	RemoteCreated  time.Time
	ProcessedAt    time.Time
}

// NewWriter returns a PostgreSQL writer when a DSN is configured and a no-op
// writer otherwise. Connection failures degrade to the no-op writer; the
// catalog is optional.
func NewWriter(cfg CatalogConfig) Writer {
	if cfg.PostgresDSN == "" {
		return noopWriter{}
	}
	w, err := NewPostgresWriter(cfg)
	if err != nil {
		log.Printf("[metadata] catalog disabled: %v", err)
		return noopWriter{}
	}
	return w
}

type noopWriter struct{}

func (noopWriter) RecordFile(context.Context, FileRecord) error { return nil }
func (noopWriter) Close() error { return nil }
