// Package inspect rebuilds what the pipeline stored for one document: the
// source text of each position, recovered from the text blob and the offset
// map, and the number of math subpaths indexed there.
package inspect

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/blob"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/offsetmap"
)

// Offsets lists the offset entries of one document in position order.
type Offsets interface {
	ForDoc(docID index.DocID) ([]offsetmap.Entry, error)
}

// MathCounts reports the subpath count per position of one document.
type MathCounts interface {
	ForDoc(ctx context.Context, docID index.DocID) (map[index.Position]int, error)
}

// Token is one recorded position.
type Token struct {
	Position index.Position `json:"position"`
	Offset   uint32         `json:"offset"`
	Len      uint64         `json:"len"`
	Text     string         `json:"text"`
	Subpaths int            `json:"subpaths,omitempty"`
}

// Document is the reconstructed view of an indexed document.
type Document struct {
	DocID  index.DocID `json:"doc_id"`
	URL    string      `json:"url"`
	Tokens []Token     `json:"tokens"`
}

type Inspector struct {
	blobs   *blob.Writer
	offsets Offsets
	math    MathCounts
}

func New(urls, texts blob.Index, offsets Offsets, math MathCounts) *Inspector {
	return &Inspector{blobs: blob.NewWriter(urls, texts), offsets: offsets, math: math}
}

// Document returns docID as stored. A missing URL blob leaves URL empty; a
// missing text blob is an error since no position can be resolved.
func (in *Inspector) Document(ctx context.Context, docID index.DocID) (Document, error) {
	doc := Document{DocID: docID}
	if url, err := in.blobs.Read(ctx, blob.ChannelURL, docID); err == nil {
		doc.URL = string(url)
	}
	text, err := in.blobs.Read(ctx, blob.ChannelText, docID)
	if err != nil {
		return doc, err
	}
	entries, err := in.offsets.ForDoc(docID)
	if err != nil {
		return doc, fmt.Errorf("listing offsets of doc %d: %w", docID, err)
	}
	counts := map[index.Position]int{}
	if in.math != nil {
		if counts, err = in.math.ForDoc(ctx, docID); err != nil {
			return doc, err
		}
	}

	doc.Tokens = make([]Token, 0, len(entries))
	for _, e := range entries {
		end := uint64(e.Offset) + e.Len
		if end > uint64(len(text)) {
			return doc, fmt.Errorf("doc %d position %d: range [%d,%d) outside text of %d bytes",
				docID, e.Position, e.Offset, end, len(text))
		}
		doc.Tokens = append(doc.Tokens, Token{
			Position: e.Position,
			Offset:   e.Offset,
			Len:      e.Len,
			Text:     string(text[e.Offset:end]),
			Subpaths: counts[e.Position],
		})
	}
	return doc, nil
}
