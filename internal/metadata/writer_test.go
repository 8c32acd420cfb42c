package metadata

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNewWriterWithoutDSNIsNoop(t *testing.T) {
	w := NewWriter(CatalogConfig{})
	if _, ok := w.(noopWriter); !ok {
		t.Fatalf("expected noop writer, got %T", w)
	}
	if err := w.RecordFile(context.Background(), FileRecord{FileName: "a.log.gz"}); err != nil {
		t.Errorf("noop RecordFile returned %v", err)
	}
}

func TestNewWriterBadDSNDegrades(t *testing.T) {
	w := NewWriter(CatalogConfig{PostgresDSN: "postgres://%zz"})
	if _, ok := w.(noopWriter); !ok {
		t.Fatalf("expected noop writer for invalid DSN, got %T", w)
	}
}

func TestSchemaDeclaresUpsertKey(t *testing.T) {
	if !strings.Contains(schemaSQL, "UNIQUE (solution, log_date, file_name)") {
		t.Error("schema must declare the upsert conflict target")
	}
}

// TestPostgresWriter runs against a real database when COLLECTOR_TEST_DSN is set.
func TestPostgresWriter(t *testing.T) {
	dsn := os.Getenv("COLLECTOR_TEST_DSN")
	if dsn == "" {
		t.Skip("COLLECTOR_TEST_DSN not set")
	}
	w, err := NewPostgresWriter(CatalogConfig{PostgresDSN: dsn})
	if err != nil {
		t.Fatalf("NewPostgresWriter failed: %v", err)
	}
	defer w.Close()

	rec := FileRecord{
		CycleID:        "test",
		Solution:       "artifactory",
		Date:           "2023-01-01",
		FileName:       "a_request.log.gz",
		SourcePath:     "jfrog-logs/artifactory/2023-01-01/a_request.log.gz",
		Destination:    "/tmp/artifactory/a_request.log",
		CompressedSize: 10,
		ExtractedSize:  40,
		ProcessedAt:    time.Now(),
	}
	for i := 0; i < 2; i++ {
		if err := w.RecordFile(context.Background(), rec); err != nil {
			t.Fatalf("RecordFile #%d failed: %v", i, err)
		}
	}
}
