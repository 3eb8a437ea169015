// Package lexer defines the lexical slices a document's text is cut into and
// the default lexer that produces them.
package lexer

import "io"

// Span is the raw text of a slice and its byte offset within the document's
// text field. The slice's length is len(Str).
type Span struct {
	Str    string
	Offset uint32
}

// Len returns the slice's byte length.
func (s Span) Len() uint32 { return uint32(len(s.Str)) }

// Slice is implemented only by MathSlice, TextSlice and EnglishSlice.
type Slice interface {
	span() Span
}

// MathSlice is a math expression including its surrounding tag, for example
// "[imath]x^2[/imath]".
type MathSlice struct{ Span }

// TextSlice is non-English text that still has to be segmented.
type TextSlice struct{ Span }

// EnglishSlice is a single English word, indexed as one term.
type EnglishSlice struct{ Span }

func (s MathSlice) span() Span    { return s.Span }
func (s TextSlice) span() Span    { return s.Span }
func (s EnglishSlice) span() Span { return s.Span }

// SpanOf returns the span carried by any slice.
func SpanOf(s Slice) Span { return s.span() }

// Lexer reads a document's text field and calls handle once per slice, in
// order of appearance, before returning.
type Lexer func(r io.Reader, handle func(Slice)) error
