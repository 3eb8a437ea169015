package segment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
)

type doc struct {
	id    index.DocID
	terms []string
}

func writeDocs(t *testing.T, w *Writer, docs ...doc) *Reader {
	t.Helper()
	m := index.NewMemoryIndex()
	for _, d := range docs {
		if err := m.AddDocument(d.id, d.terms); err != nil {
			t.Fatal(err)
		}
	}
	name, err := w.Write(m.Snapshot())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	r, err := OpenReader(filepath.Join(w.dataDir, name))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestWriteAndSearch(t *testing.T) {
	w := NewWriter(t.TempDir())
	r := writeDocs(t, w,
		doc{1, []string{"the", "math_exp", "is", "positive"}},
		doc{2, []string{"math_exp", "positive"}},
	)

	if r.Terms() != 4 {
		t.Errorf("terms = %d, want 4", r.Terms())
	}
	if r.DocCount() != 2 || r.MaxDocID() != 2 {
		t.Errorf("doc count = %d, max doc ID = %d", r.DocCount(), r.MaxDocID())
	}

	postings, err := r.Search("positive")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(postings))
	}
	if postings[0].DocID != 1 || postings[0].Positions[0] != 3 {
		t.Errorf("unexpected first posting: %+v", postings[0])
	}
	if postings[1].DocID != 2 || postings[1].Positions[0] != 1 {
		t.Errorf("unexpected second posting: %+v", postings[1])
	}

	missing, err := r.Search("absent")
	if err != nil || missing != nil {
		t.Errorf("expected nil result for absent term, got %v, %v", missing, err)
	}
}

func TestDocumentsWithoutTermsArePersisted(t *testing.T) {
	w := NewWriter(t.TempDir())
	r := writeDocs(t, w, doc{1, []string{"a"}}, doc{2, nil}, doc{3, nil})
	if r.MaxDocID() != 3 {
		t.Errorf("max doc ID = %d, want 3", r.MaxDocID())
	}
	lens := r.DocLens()
	if len(lens) != 3 || lens[0].Len != 1 || lens[2] != (index.DocLen{DocID: 3}) {
		t.Errorf("doc lens = %+v", lens)
	}

	only := writeDocs(t, w, doc{4, nil})
	if only.Terms() != 0 || only.MaxDocID() != 4 {
		t.Errorf("term-less segment: terms = %d, max = %d", only.Terms(), only.MaxDocID())
	}
}

func TestWriteEmptySegment(t *testing.T) {
	if _, err := NewWriter(t.TempDir()).Write(index.Snapshot{}); !errors.Is(err, ErrEmptySegment) {
		t.Fatalf("err = %v, want ErrEmptySegment", err)
	}
}

func TestOpenReaderDetectsCorruption(t *testing.T) {
	tests := []struct {
		name   string
		offset func(h Header) int64
	}{
		{"dictionary", func(h Header) int64 { return h.DictOffset + 3 }},
		{"document lengths", func(h Header) int64 { return h.DocsOffset + 3 }},
		{"magic", func(Header) int64 { return 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(t.TempDir())
			r := writeDocs(t, w, doc{1, []string{"alpha", "beta"}})
			path := r.Path()
			r.Close()

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			h := decodeHeader(data[:HeaderSize])
			data[tt.offset(h)] ^= 0x01
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := OpenReader(path); err == nil {
				t.Fatal("expected an error for a corrupted segment")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	w := NewWriter(t.TempDir())
	a := writeDocs(t, w, doc{1, []string{"x", "y"}}, doc{2, []string{"y"}})
	b := writeDocs(t, w, doc{3, []string{"y", "z"}}, doc{4, nil})

	merged, err := Merge([]*Reader{b, a})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.Entries) != 3 {
		t.Fatalf("expected 3 merged terms, got %d", len(merged.Entries))
	}
	y := merged.Entries[1]
	if y.Term != "y" || len(y.Postings) != 3 {
		t.Fatalf("unexpected merged entry: %+v", y)
	}
	for i, want := range []index.DocID{1, 2, 3} {
		if y.Postings[i].DocID != want {
			t.Errorf("posting %d docID = %d, want %d", i, y.Postings[i].DocID, want)
		}
	}
	if len(merged.Docs) != 4 || merged.MaxDocID() != 4 || merged.Docs[0].DocID != 1 {
		t.Errorf("merged docs = %+v", merged.Docs)
	}
}
