package index

import (
	"fmt"
	"sort"
	"sync"
)

// postingOverhead approximates the bytes a posting costs beyond its
// positions.
const postingOverhead = 48

// MemoryIndex accumulates documents in increasing DocID order, so every
// term's posting list stays sorted by construction.
type MemoryIndex struct {
	mu    sync.RWMutex
	terms map[string]PostingList
	docs  []DocLen
	size  int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{terms: make(map[string]PostingList)}
}

// AddDocument records terms in order; the i-th term occupies position i.
// docID must be larger than every ID added since the last Reset.
func (m *MemoryIndex) AddDocument(docID DocID, terms []string) error {
	byTerm := make(map[string]*Posting)
	order := make([]string, 0, len(terms))
	for i, term := range terms {
		p, ok := byTerm[term]
		if !ok {
			p = &Posting{DocID: docID, Positions: make([]Position, 0, 2)}
			byTerm[term] = p
			order = append(order, term)
		}
		p.Frequency++
		p.Positions = append(p.Positions, Position(i))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.docs); n > 0 && docID <= m.docs[n-1].DocID {
		return fmt.Errorf("doc %d added after doc %d", docID, m.docs[n-1].DocID)
	}
	for _, term := range order {
		p := byTerm[term]
		m.terms[term] = append(m.terms[term], *p)
		m.size += int64(len(term) + len(p.Positions)*4 + postingOverhead)
	}
	m.docs = append(m.docs, DocLen{DocID: docID, Len: len(terms)})
	m.size += 8
	return nil
}

// Search returns a copy of term's postings.
func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list, ok := m.terms[term]
	if !ok {
		return nil
	}
	return append(PostingList(nil), list...)
}

// Snapshot copies the index out, ready to be written as a segment.
func (m *MemoryIndex) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.terms))
	for term, list := range m.terms {
		entries = append(entries, TermEntry{Term: term, Postings: append(PostingList(nil), list...)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return Snapshot{Entries: entries, Docs: append([]DocLen(nil), m.docs...)}
}

// Size is an estimate of the memory held, in bytes.
func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms = make(map[string]PostingList)
	m.docs = nil
	m.size = 0
}
