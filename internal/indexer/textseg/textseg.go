// Package textseg splits non-English text slices into indexable segments and
// provides the ASCII case folding applied to every text slice.
package textseg

import (
	"unicode"
	"unicode/utf8"
)

// Segment is one indexable unit of a text slice. Offset is relative to the
// start of the slice it was cut from.
type Segment struct {
	Str    string
	Offset uint32
	Len    uint32
}

// Split cuts s into segments. Each Han character is its own segment; other
// runs of letters and digits form one segment each. Everything else
// separates segments and is dropped.
func Split(s string) []Segment {
	segs := make([]Segment, 0, len(s)/3)
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			segs = append(segs, Segment{Str: s[start:end], Offset: uint32(start), Len: uint32(end - start)})
		}
		start = -1
	}
	for i, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			flush(i)
			size := utf8.RuneLen(r)
			segs = append(segs, Segment{Str: s[i : i+size], Offset: uint32(i), Len: uint32(size)})
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r):
			if start < 0 {
				start = i
			}
		default:
			flush(i)
		}
	}
	flush(len(s))
	return segs
}

// LowerASCII folds A-Z to a-z and leaves every other byte alone, so byte
// offsets into the original text stay valid.
func LowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if 'A' <= b[j] && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}
