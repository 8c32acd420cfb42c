package extract

import (
	"context"
	"fmt"

	"github.com/withObsrvr/saas-log-collector/internal/storage"
)

// Extractor decompresses a payload fully before appending it, so a corrupt
// object never leaves partial content in the destination.
type Extractor struct {
	store storage.LogStore
}

// New returns an Extractor writing to store.
func New(store storage.LogStore) *Extractor {
	return &Extractor{store: store}
}

// Extract decompresses data and appends it to the solution's file name. It
// returns the number of decompressed bytes written. decoded reports whether
// the transport already removed the content encoding.
func (e *Extractor) Extract(ctx context.Context, solution, name string, data []byte, decoded bool) (int64, error) {
	raw, err := Decompress(data, decoded)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", name, err)
	}
	n, err := e.store.Append(ctx, solution, name, raw)
	if err != nil {
		return n, fmt.Errorf("extract %s: %w", name, err)
	}
	return n, nil
}
