package texparse

import (
	"unicode"
	"unicode/utf8"
)

type tokKind int

const (
	tEOF tokKind = iota
	tLetter
	tNumber
	tCommand
	tSymbol
)

type token struct {
	kind tokKind
	val  string
	pos  int
}

// Commands that only affect spacing or delimiter sizing.
var ignoredCommands = map[string]bool{
	`\,`: true, `\;`: true, `\:`: true, `\!`: true, `\ `: true, `\\`: true,
	`\quad`: true, `\qquad`: true, `\left`: true, `\right`: true,
	`\displaystyle`: true, `\limits`: true, `\big`: true, `\Big`: true,
}

var ignoredSymbols = map[rune]bool{'&': true, '~': true, '$': true, '#': true}

func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case unicode.IsSpace(r) || ignoredSymbols[r]:
			i += size
		case r == '\\':
			start := i
			i++
			if i >= len(s) {
				break
			}
			n, nsize := utf8.DecodeRuneInString(s[i:])
			if isASCIILetter(n) {
				for i < len(s) && isASCIILetter(rune(s[i])) {
					i++
				}
			} else {
				i += nsize
			}
			cmd := s[start:i]
			if !ignoredCommands[cmd] {
				toks = append(toks, token{kind: tCommand, val: cmd, pos: start})
			}
		case r >= '0' && r <= '9':
			start, dot := i, false
			for i < len(s) {
				c := s[i]
				if c == '.' && !dot && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
					dot = true
				} else if c < '0' || c > '9' {
					break
				}
				i++
			}
			toks = append(toks, token{kind: tNumber, val: s[start:i], pos: start})
		case unicode.IsLetter(r):
			toks = append(toks, token{kind: tLetter, val: s[i : i+size], pos: i})
			i += size
		default:
			toks = append(toks, token{kind: tSymbol, val: s[i : i+size], pos: i})
			i += size
		}
	}
	return append(toks, token{kind: tEOF, pos: len(s)})
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
