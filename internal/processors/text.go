package processors

import (
	"unicode"
	"unicode/utf8"
)

// Fold lower-cases text rune by rune without changing any rune's encoded
// length, so byte offsets into the result are valid offsets into text.
func Fold(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		lower := unicode.ToLower(r)
		if lower == 'ё' {
			lower = 'е'
		}
		if utf8.RuneLen(lower) != utf8.RuneLen(r) || r == utf8.RuneError {
			lower = r
		}
		out = utf8.AppendRune(out, lower)
	}
	return out
}

// FoldString is Fold for dictionary terms.
func FoldString(s string) string {
	return string(Fold(s))
}

// IsWordRune reports whether r can be part of a word.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '’' || r == '-'
}

// AtWordBoundary reports whether [start,end) in text is delimited by non-word
// runes (or the text edges) on both sides.
func AtWordBoundary(text []byte, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRune(text[:start])
		if IsWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRune(text[end:])
		if IsWordRune(r) {
			return false
		}
	}
	return true
}

// PreviousWord returns the bounds of the word ending just before pos,
// skipping a single run of spaces. ok is false when there is none.
func PreviousWord(text []byte, pos int) (start, end int, ok bool) {
	i := pos
	for i > 0 {
		r, size := utf8.DecodeLastRune(text[:i])
		if r != ' ' && r != '\t' {
			break
		}
		i -= size
	}
	if i == pos {
		return 0, 0, false
	}
	end = i
	for i > 0 {
		r, size := utf8.DecodeLastRune(text[:i])
		if !IsWordRune(r) {
			break
		}
		i -= size
	}
	if i == end {
		return 0, 0, false
	}
	return i, end, true
}
