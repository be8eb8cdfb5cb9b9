// Package bm25 implements the in-process term-weighted keyword index of
// spec.md §4.2. The teacher delegates keyword search to Elasticsearch;
// this package is new, grounded on spec.md §4.2/§9's own prescribed
// snapshot design and on the presence of a CJK segmenter (gojieba) in
// the teacher's dependency set as evidence of CJK-heavy documents.
package bm25

import (
	"unicode"

	"github.com/wekui/ragcore/internal/common"
)

// Tokenize splits text into lowercase tokens on whitespace/punctuation,
// treating each CJK codepoint as its own token, per spec.md §4.2. There
// is no stopword list — nothing is filtered.
func Tokenize(text string) []string {
	runes := []rune(common.CleanInvalidUTF8(text))
	tokens := make([]string, 0, len(runes)/3+1)
	var current []rune

	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = current[:0]
		}
	}

	for _, r := range runes {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, string(unicode.ToLower(r)))
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			flush()
		default:
			current = append(current, unicode.ToLower(r))
		}
	}
	flush()

	return tokens
}

// isCJK reports whether r falls in one of the common CJK unified
// ideograph / kana / hangul ranges.
func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK Unified Ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF: // CJK Extension A
		return true
	case r >= 0x3040 && r <= 0x30FF: // Hiragana + Katakana
		return true
	case r >= 0xAC00 && r <= 0xD7A3: // Hangul Syllables
		return true
	default:
		return false
	}
}
