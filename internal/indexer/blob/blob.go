// Package blob stores the raw URL and text of every document in two
// independent channels keyed by document ID. Each stored record starts with
// a one-byte codec marker so a reader can tell compressed records apart.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
)

// Channel names a logical partition of the blob store.
type Channel string

const (
	ChannelURL  Channel = "url"
	ChannelText Channel = "text"
)

const (
	codecRaw  byte = 0
	codecGzip byte = 1
)

// Index is one blob channel.
type Index interface {
	Put(ctx context.Context, docID index.DocID, record []byte) error
	Get(ctx context.Context, docID index.DocID) ([]byte, error)
	Close() error
}

// Writer routes blobs to their channel and applies compression.
type Writer struct {
	channels map[Channel]Index
}

func NewWriter(url, text Index) *Writer {
	return &Writer{channels: map[Channel]Index{
		ChannelURL:  url,
		ChannelText: text,
	}}
}

// Write encodes payload, gzip-compressed when compress is set, and stores it
// under docID in ch.
func (w *Writer) Write(ctx context.Context, ch Channel, docID index.DocID, payload []byte, compress bool) error {
	idx, ok := w.channels[ch]
	if !ok {
		return fmt.Errorf("unknown blob channel %q", ch)
	}
	record, err := Encode(payload, compress)
	if err != nil {
		return fmt.Errorf("encoding %s blob for doc %d: %w", ch, docID, err)
	}
	if err := idx.Put(ctx, docID, record); err != nil {
		return fmt.Errorf("writing %s blob for doc %d: %w", ch, docID, err)
	}
	return nil
}

// Read returns the original payload stored under docID in ch.
func (w *Writer) Read(ctx context.Context, ch Channel, docID index.DocID) ([]byte, error) {
	idx, ok := w.channels[ch]
	if !ok {
		return nil, fmt.Errorf("unknown blob channel %q", ch)
	}
	record, err := idx.Get(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("reading %s blob for doc %d: %w", ch, docID, err)
	}
	return Decode(record)
}

var gzipWriters = sync.Pool{
	New: func() any {
		zw, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return zw
	},
}

// Encode prefixes payload with its codec marker, compressing it first when
// compress is set.
func Encode(payload []byte, compress bool) ([]byte, error) {
	if !compress {
		record := make([]byte, 1+len(payload))
		record[0] = codecRaw
		copy(record[1:], payload)
		return record, nil
	}
	var buf bytes.Buffer
	buf.WriteByte(codecGzip)
	zw := gzipWriters.Get().(*gzip.Writer)
	defer gzipWriters.Put(zw)
	zw.Reset(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finishing compression: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(record []byte) ([]byte, error) {
	if len(record) == 0 {
		return nil, fmt.Errorf("empty blob record")
	}
	switch record[0] {
	case codecRaw:
		return record[1:], nil
	case codecGzip:
		zr, err := gzip.NewReader(bytes.NewReader(record[1:]))
		if err != nil {
			return nil, fmt.Errorf("opening compressed blob: %w", err)
		}
		defer zr.Close()
		payload, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompressing blob: %w", err)
		}
		return payload, nil
	}
	return nil, fmt.Errorf("unknown blob codec %d", record[0])
}

// IsCompressed reports whether record was stored compressed.
func IsCompressed(record []byte) bool {
	return len(record) > 0 && record[0] == codecGzip
}
