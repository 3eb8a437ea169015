package segment

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
)

// Reader serves one segment. The dictionary and document lengths are held
// in memory; posting lists are read on demand.
type Reader struct {
	file   *os.File
	path   string
	header Header
	dict   []DictEntry
	docs   []index.DocLen
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	hb := make([]byte, HeaderSize)
	if _, err := f.ReadAt(hb, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	h := decodeHeader(hb)
	if h.Magic != MagicBytes {
		return nil, fmt.Errorf("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported version %d", h.Version)
	}

	fb := make([]byte, FooterSize)
	if _, err := f.ReadAt(fb, h.DocsOffset+h.DocsSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	ft := decodeFooter(fb)
	if ft.maxDoc != h.MaxDocID {
		return nil, fmt.Errorf("header max doc %d disagrees with footer %d", h.MaxDocID, ft.maxDoc)
	}

	dictData, err := readSection(f, h.DictOffset, h.DictSize, ft.dictCRC, "dictionary")
	if err != nil {
		return nil, err
	}
	docsData, err := readSection(f, h.DocsOffset, h.DocsSize, ft.docsCRC, "document lengths")
	if err != nil {
		return nil, err
	}
	r := &Reader{file: f, path: path, header: h}
	if err := json.Unmarshal(dictData, &r.dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	if err := json.Unmarshal(docsData, &r.docs); err != nil {
		return nil, fmt.Errorf("parsing document lengths: %w", err)
	}
	return r, nil
}

func readSection(f *os.File, off, size int64, crc uint32, what string) ([]byte, error) {
	b := make([]byte, size)
	if _, err := f.ReadAt(b, off); err != nil {
		return nil, fmt.Errorf("reading %s: %w", what, err)
	}
	if got := crc32.ChecksumIEEE(b); got != crc {
		return nil, fmt.Errorf("%s checksum mismatch: stored %08x, computed %08x", what, crc, got)
	}
	return b, nil
}

// Search returns the postings of term, or nil if the segment lacks it.
func (r *Reader) Search(term string) (index.PostingList, error) {
	i := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if i >= len(r.dict) || r.dict[i].Term != term {
		return nil, nil
	}
	return r.postings(r.dict[i])
}

// Snapshot reads the whole segment back.
func (r *Reader) Snapshot() (index.Snapshot, error) {
	entries := make([]index.TermEntry, 0, len(r.dict))
	for _, d := range r.dict {
		postings, err := r.postings(d)
		if err != nil {
			return index.Snapshot{}, err
		}
		entries = append(entries, index.TermEntry{Term: d.Term, Postings: postings})
	}
	return index.Snapshot{Entries: entries, Docs: r.DocLens()}, nil
}

func (r *Reader) postings(d DictEntry) (index.PostingList, error) {
	b := make([]byte, d.PostLen)
	if _, err := r.file.ReadAt(b, r.header.PostOffset+d.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", d.Term, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(b, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings for %q: %w", d.Term, err)
	}
	return postings, nil
}

// DocLens returns a copy of the document lengths, sorted by DocID.
func (r *Reader) DocLens() []index.DocLen {
	return append([]index.DocLen(nil), r.docs...)
}

func (r *Reader) Terms() int { return len(r.dict) }

func (r *Reader) DocCount() uint32 { return r.header.DocCount }

func (r *Reader) MaxDocID() index.DocID { return r.header.MaxDocID }

func (r *Reader) Path() string { return r.path }

func (r *Reader) Close() error { return r.file.Close() }
