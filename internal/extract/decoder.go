// Package extract decompresses downloaded log objects and appends their
// content to the local destination.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrEmpty is returned for a zero-length payload.
	ErrEmpty = errors.New("empty payload")

	// ErrNotCompressed is returned for a payload that is not a gzip stream
	// and was not decoded by the transport either. Error pages served with
	// a 200 status end up here.
	ErrNotCompressed = errors.New("payload is not gzip compressed")
)

var gzipMagic = []byte{0x1f, 0x8b}

// Decompress returns the full content of data. Concatenated gzip members are
// read in sequence. A payload without the gzip magic is returned unchanged
// only when decoded is set, i.e. the HTTP transport already removed a content
// encoding.
func Decompress(data []byte, decoded bool) ([]byte, error) {
	switch {
	case len(data) == 0:
		return nil, ErrEmpty
	case bytes.HasPrefix(data, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		return out, nil
	case decoded:
		return data, nil
	default:
		return nil, ErrNotCompressed
	}
}
