package lexer

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

type mathTag struct {
	open, close string
}

// Longer delimiters first so "$$" wins over "$".
var mathTags = []mathTag{
	{"[imath]", "[/imath]"},
	{"[dmath]", "[/dmath]"},
	{"<math>", "</math>"},
	{"$$", "$$"},
	{"$", "$"},
}

// Lex is the default Lexer. Math regions become MathSlices; maximal runs of
// letters and digits become EnglishSlices when they are pure ASCII and
// TextSlices otherwise. Whitespace, punctuation and unterminated math
// openers are skipped.
func Lex(r io.Reader, handle func(Slice)) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading text field: %w", err)
	}
	text := string(data)

	i := 0
	for i < len(text) {
		if end, ok := matchMath(text, i); ok {
			handle(MathSlice{Span{Str: text[i:end], Offset: uint32(i)}})
			i = end
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isWordRune(r) {
			i += size
			continue
		}
		start, ascii := i, true
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !isWordRune(r) {
				break
			}
			if r >= utf8.RuneSelf {
				ascii = false
			}
			i += size
		}
		span := Span{Str: text[start:i], Offset: uint32(start)}
		if ascii {
			handle(EnglishSlice{span})
		} else {
			handle(TextSlice{span})
		}
	}
	return nil
}

// StripMathTag removes the math delimiters around s and trims surrounding
// whitespace. Strings without a known delimiter pair are only trimmed.
func StripMathTag(s string) string {
	for _, tag := range mathTags {
		if len(s) >= len(tag.open)+len(tag.close) &&
			strings.HasPrefix(s, tag.open) && strings.HasSuffix(s, tag.close) {
			return strings.TrimSpace(s[len(tag.open) : len(s)-len(tag.close)])
		}
	}
	return strings.TrimSpace(s)
}

func matchMath(text string, i int) (end int, ok bool) {
	for _, tag := range mathTags {
		if !strings.HasPrefix(text[i:], tag.open) {
			continue
		}
		body := i + len(tag.open)
		j := strings.Index(text[body:], tag.close)
		if j < 0 {
			return 0, false
		}
		return body + j + len(tag.close), true
	}
	return 0, false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
