package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDerivedName(t *testing.T) {
	tests := []struct {
		file    string
		logType string
		byType  bool
		want    string
	}{
		{"a_request.log.gz", "request", false, "a_request.log"},
		{"a_request.log.gz", "request", true, "request.log"},
		{"b_access-request.log.gz", "access", true, "access.log"},
		{"a_request.log.gz", "gz", true, "gz.log"},
		{"c_traffic.log.gz", "", true, "c_traffic.log"},
		{"plain.log", "", false, "plain.log"},
	}
	for _, tt := range tests {
		if got := DerivedName(tt.file, tt.logType, tt.byType); got != tt.want {
			t.Errorf("DerivedName(%q, %q, byType=%v) = %q, want %q", tt.file, tt.logType, tt.byType, got, tt.want)
		}
	}
}

func TestPathIsPure(t *testing.T) {
	a := Path("/var/log/jfrog", "artifactory", "request.log")
	b := Path("/var/log/jfrog/", "artifactory", "request.log")
	if a != b || a != filepath.Join("/var/log/jfrog", "artifactory", "request.log") {
		t.Errorf("unexpected paths %q and %q", a, b)
	}
}

func TestLocalStoreAppend(t *testing.T) {
	// Create temp directory
	tmpDir, err := os.MkdirTemp("", "collector-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := NewLocalStore(filepath.Join(tmpDir, "target"))
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Append(ctx, "artifactory", "request.log", []byte("one\n")); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	n, err := store.Append(ctx, "artifactory", "request.log", []byte("two\n"))
	if err != nil {
		t.Fatalf("second append failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 bytes written, got %d", n)
	}

	data, err := os.ReadFile(store.Path("artifactory", "request.log"))
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestLocalStoreConcurrentAppendsDoNotInterleave(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewLocalStore(tmpDir)
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	const writers = 16
	chunk := func(i int) []byte {
		return bytes.Repeat([]byte(fmt.Sprintf("%02d", i)), 32*1024)
	}

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Append(context.Background(), "xray", "request.log", chunk(i)); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(store.Path("xray", "request.log"))
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	size := len(chunk(0))
	if len(data) != writers*size {
		t.Fatalf("expected %d bytes, got %d", writers*size, len(data))
	}
	seen := map[string]bool{}
	for off := 0; off < len(data); off += size {
		block := string(data[off : off+size])
		id := block[:2]
		if block != strings.Repeat(id, size/2) {
			t.Fatalf("block at %d is interleaved", off)
		}
		seen[id] = true
	}
	if len(seen) != writers {
		t.Errorf("expected %d distinct blocks, got %d", writers, len(seen))
	}
}

func TestLocalStoreCancelledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Append(ctx, "artifactory", "x.log", []byte("x")); err == nil {
		t.Error("expected error for cancelled context")
	}
	if _, err := os.Stat(store.Path("artifactory", "x.log")); !os.IsNotExist(err) {
		t.Error("nothing should be written after cancellation")
	}
}
