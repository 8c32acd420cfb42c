package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewArchiveDisabled(t *testing.T) {
	a, err := NewArchive(context.Background(), "", "raw/")
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}
	if err := a.Put(context.Background(), "artifactory", "2023-01-01", "a.log.gz", []byte("x")); err != nil {
		t.Errorf("noop Put returned %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("noop Close returned %v", err)
	}
}

func TestBlobArchiveMem(t *testing.T) {
	ctx := context.Background()
	a, err := NewArchive(ctx, "mem://", "raw/")
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}
	defer a.Close()

	ba := a.(*BlobArchive)
	if err := ba.Put(ctx, "xray", "2023-01-01", "b.log.gz", []byte("gz")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := ba.bucket.ReadAll(ctx, "raw/xray/2023-01-01/b.log.gz")
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != "gz" {
		t.Errorf("unexpected object content %q", got)
	}
	if uri := ba.URI("raw/x"); uri != "mem://raw/x" {
		t.Errorf("unexpected URI %q", uri)
	}
}

func TestBlobArchiveFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, err := NewArchive(ctx, "file://"+dir, "")
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}
	defer a.Close()

	if err := a.Put(ctx, "artifactory", "2023-01-02", "a.log.gz", []byte("payload")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "artifactory", "2023-01-02", "a.log.gz"))
	if err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("unexpected archived content %q", data)
	}
}
