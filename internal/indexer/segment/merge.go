package segment

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
)

// Merge combines several segments into one snapshot. Segments cover
// disjoint document ranges, so postings of a term are concatenated and
// re-sorted by DocID.
func Merge(readers []*Reader) (index.Snapshot, error) {
	byTerm := make(map[string]index.PostingList)
	var docs []index.DocLen
	for _, r := range readers {
		snap, err := r.Snapshot()
		if err != nil {
			return index.Snapshot{}, fmt.Errorf("reading segment %s: %w", r.Path(), err)
		}
		for _, e := range snap.Entries {
			byTerm[e.Term] = append(byTerm[e.Term], e.Postings...)
		}
		docs = append(docs, snap.Docs...)
	}

	out := index.Snapshot{Entries: make([]index.TermEntry, 0, len(byTerm)), Docs: docs}
	for term, postings := range byTerm {
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		out.Entries = append(out.Entries, index.TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(out.Entries, func(i, j int) bool {
		return out.Entries[i].Term < out.Entries[j].Term
	})
	sort.Slice(out.Docs, func(i, j int) bool {
		return out.Docs[i].DocID < out.Docs[j].DocID
	})
	return out, nil
}
