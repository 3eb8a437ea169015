// Package segment persists snapshots of the memory index as immutable .spdx
// files and merges them during term index maintenance.
//
// Layout: an 80-byte header, the JSON posting lists back to back, the JSON
// dictionary, the JSON document lengths and a 32-byte footer. All integers
// are little endian.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 3
	HeaderSize    int    = 80
	FooterSize    int    = 32
	Extension            = ".spdx"
)

var ErrEmptySegment = errors.New("cannot write empty segment")

// Header is written at the start of every segment.
type Header struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	PostOffset int64
	PostSize   int64
	DictOffset int64
	DictSize   int64
	DocsOffset int64
	DocsSize   int64
	MaxDocID   index.DocID
	CreatedAt  int64
}

// DictEntry locates one term's posting list relative to PostOffset.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], h.Magic)
	le.PutUint32(b[4:8], h.Version)
	le.PutUint32(b[8:12], h.TermCount)
	le.PutUint32(b[12:16], h.DocCount)
	le.PutUint64(b[16:24], uint64(h.PostOffset))
	le.PutUint64(b[24:32], uint64(h.PostSize))
	le.PutUint64(b[32:40], uint64(h.DictOffset))
	le.PutUint64(b[40:48], uint64(h.DictSize))
	le.PutUint64(b[48:56], uint64(h.DocsOffset))
	le.PutUint64(b[56:64], uint64(h.DocsSize))
	le.PutUint32(b[64:68], uint32(h.MaxDocID))
	le.PutUint64(b[68:76], uint64(h.CreatedAt))
	return b
}

func decodeHeader(b []byte) Header {
	le := binary.LittleEndian
	return Header{
		Magic:      le.Uint32(b[0:4]),
		Version:    le.Uint32(b[4:8]),
		TermCount:  le.Uint32(b[8:12]),
		DocCount:   le.Uint32(b[12:16]),
		PostOffset: int64(le.Uint64(b[16:24])),
		PostSize:   int64(le.Uint64(b[24:32])),
		DictOffset: int64(le.Uint64(b[32:40])),
		DictSize:   int64(le.Uint64(b[40:48])),
		DocsOffset: int64(le.Uint64(b[48:56])),
		DocsSize:   int64(le.Uint64(b[56:64])),
		MaxDocID:   index.DocID(le.Uint32(b[64:68])),
		CreatedAt:  int64(le.Uint64(b[68:76])),
	}
}

// footer carries checksums of the sections read eagerly on open.
type footer struct {
	dictCRC uint32
	docsCRC uint32
	maxDoc  index.DocID
}

func (f footer) encode() []byte {
	b := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(b[0:4], f.dictCRC)
	binary.LittleEndian.PutUint32(b[4:8], f.docsCRC)
	binary.LittleEndian.PutUint32(b[8:12], uint32(f.maxDoc))
	binary.LittleEndian.PutUint32(b[28:32], MagicBytes)
	return b
}

func decodeFooter(b []byte) footer {
	return footer{
		dictCRC: binary.LittleEndian.Uint32(b[0:4]),
		docsCRC: binary.LittleEndian.Uint32(b[4:8]),
		maxDoc:  index.DocID(binary.LittleEndian.Uint32(b[8:12])),
	}
}

type Writer struct {
	dataDir string
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write creates a new segment from snap and returns its file name. The file
// is written under a .tmp name and renamed once synced.
func (w *Writer) Write(snap index.Snapshot) (string, error) {
	if snap.Empty() {
		return "", ErrEmptySegment
	}
	name := fmt.Sprintf("seg_%d%s", time.Now().UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(snap.Entries)),
		DocCount:   uint32(len(snap.Docs)),
		PostOffset: int64(HeaderSize),
		MaxDocID:   snap.MaxDocID(),
		CreatedAt:  time.Now().Unix(),
	}
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return "", fmt.Errorf("reserving header: %w", err)
	}

	var rel int64
	dict := make([]DictEntry, 0, len(snap.Entries))
	for _, entry := range snap.Entries {
		data, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: rel,
			PostLen:    len(data),
			DocFreq:    len(entry.Postings),
		})
		rel += int64(len(data))
	}
	header.PostSize = rel

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	docsData, err := json.Marshal(snap.Docs)
	if err != nil {
		return "", fmt.Errorf("marshaling document lengths: %w", err)
	}
	header.DictOffset = header.PostOffset + header.PostSize
	header.DictSize = int64(len(dictData))
	header.DocsOffset = header.DictOffset + header.DictSize
	header.DocsSize = int64(len(docsData))

	ft := footer{
		dictCRC: crc32.ChecksumIEEE(dictData),
		docsCRC: crc32.ChecksumIEEE(docsData),
		maxDoc:  header.MaxDocID,
	}
	for _, part := range [][]byte{dictData, docsData, ft.encode()} {
		if _, err := f.Write(part); err != nil {
			return "", fmt.Errorf("writing segment %s: %w", name, err)
		}
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return name, nil
}
