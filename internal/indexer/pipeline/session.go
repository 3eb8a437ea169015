package pipeline

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/lexer"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/offsetmap"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/texparse"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/textseg"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/metrics"
)

// session is the state of the one open document. pos is the next position
// to hand out; every token records its offset before pos advances.
type session struct {
	c     *Controller
	ctx   context.Context
	docID index.DocID
	pos   index.Position

	mathOK   int
	mathFail int
	// offsets counts entries buffered for this document.
	offsets int
}

func (s *session) handleSlice(sl lexer.Slice) {
	switch sl := sl.(type) {
	case lexer.MathSlice:
		s.c.stores.Terms.Add(MathSentinel)
		s.indexTeX(lexer.StripMathTag(sl.Str), sl.Offset, sl.Len())
	case lexer.TextSlice:
		text := textseg.LowerASCII(sl.Str)
		for _, seg := range textseg.Split(text) {
			s.indexTerm(seg.Str, sl.Offset+seg.Offset, seg.Len, metrics.KindSegment)
		}
	case lexer.EnglishSlice:
		s.indexTerm(textseg.LowerASCII(sl.Str), sl.Offset, sl.Len(), metrics.KindTerm)
	default:
		panic(fmt.Sprintf("pipeline: unhandled slice type %T", sl))
	}
}

func (s *session) indexTerm(term string, offset, length uint32, kind string) {
	s.c.stores.Terms.Add(term)
	s.saveOffset(offset, length)
	s.advance(kind)
}

// indexTeX indexes one math expression. A parse failure still consumes the
// position the sentinel term took.
func (s *session) indexTeX(tex string, offset, length uint32) {
	subpaths, err := s.c.parse(tex, s.c.cfg.TexStrict)
	if err != nil {
		s.mathFail++
		s.c.logger.Warn("tex parse failed",
			"doc_id", s.docID,
			"position", s.pos,
			"tex", tex,
			"error", err,
		)
		if s.c.metrics != nil {
			s.c.metrics.TexParseFailuresTotal.Inc()
		}
	} else {
		s.addMath(subpaths)
	}
	s.saveOffset(offset, length)
	s.advance(metrics.KindMath)
}

func (s *session) addMath(subpaths *texparse.Subpaths) {
	defer subpaths.Release()
	if err := s.c.stores.Math.Add(s.ctx, s.docID, s.pos, subpaths); err != nil {
		s.mathFail++
		s.c.logger.Error("math index add failed",
			"doc_id", s.docID,
			"position", s.pos,
			"error", err,
		)
		if s.c.metrics != nil {
			s.c.metrics.MathIndexFailuresTotal.Inc()
		}
		return
	}
	s.mathOK++
}

func (s *session) saveOffset(offset, length uint32) {
	k := offsetmap.Key{DocID: s.docID, Position: s.pos}
	v := offsetmap.Value{Offset: offset, Len: uint64(length)}
	if err := s.c.stores.Offsets.Put(k, v); err != nil {
		s.c.logger.Warn("offset write failed",
			"doc_id", s.docID,
			"position", s.pos,
			"offset", offset,
			"error", err,
		)
		if s.c.metrics != nil {
			s.c.metrics.OffsetWriteFailuresTotal.Inc()
		}
		return
	}
	s.offsets++
}

// commitOffsets writes the document's buffered offsets. A failed commit
// loses all of them.
func (s *session) commitOffsets() {
	if err := s.c.stores.Offsets.Commit(); err != nil {
		s.c.logger.Warn("offset commit failed",
			"doc_id", s.docID,
			"entries", s.offsets,
			"error", err,
		)
		if s.c.metrics != nil {
			s.c.metrics.OffsetWriteFailuresTotal.Add(float64(s.offsets))
		}
	}
}

func (s *session) advance(kind string) {
	s.pos++
	if s.c.metrics != nil {
		s.c.metrics.TokensIndexedTotal.WithLabelValues(kind).Inc()
	}
}
