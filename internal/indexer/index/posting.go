// Package index holds the in-memory positional inverted index that backs the
// term index between segment flushes.
package index

// DocID identifies a document across the term index, math index, offset map
// and blob channels. IDs are assigned by the term index, starting at 1.
type DocID uint32

// Position counts indexed tokens within one document, starting at 0. Terms
// and math expressions share the same sequence.
type Position uint32

type Posting struct {
	DocID     DocID      `json:"d"`
	Frequency int        `json:"f"`
	Positions []Position `json:"p"`
}

// PostingList is sorted by DocID.
type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

// DocLen is the number of terms a document was indexed with. Documents
// without terms still have one, so their IDs survive a flush.
type DocLen struct {
	DocID DocID `json:"d"`
	Len   int   `json:"n"`
}

// Snapshot is the content of a memory index or segment: term entries sorted
// by term and document lengths sorted by DocID.
type Snapshot struct {
	Entries []TermEntry
	Docs    []DocLen
}

func (s Snapshot) Empty() bool {
	return len(s.Entries) == 0 && len(s.Docs) == 0
}

// MaxDocID is the largest document ID in s, or zero.
func (s Snapshot) MaxDocID() DocID {
	if len(s.Docs) == 0 {
		return 0
	}
	return s.Docs[len(s.Docs)-1].DocID
}
