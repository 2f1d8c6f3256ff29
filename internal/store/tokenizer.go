package store

import (
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	segmenter "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// MinTokenLength is the shortest term kept, counted in runes.
const MinTokenLength = 2

var (
	wordTokenizer = segmenter.NewUnicodeTokenizer()
	lowerFilter   = lowercase.NewLowerCaseFilter()
)

// Tokenize splits text into lowercase word terms. Words are segmented with
// the Unicode word-boundary rules, so non-English text keeps its letters.
// Punctuation inside a segment (main.go, don't) splits it further.
// Underscores stay part of a term, matching identifiers like user_id.
// Adjacent Han, hiragana and katakana segments form a single term.
// Terms shorter than MinTokenLength runes are dropped.
func Tokenize(text string) []string {
	if text == "" {
		return []string{}
	}

	stream := lowerFilter.Filter(wordTokenizer.Tokenize([]byte(text)))

	tokens := make([]string, 0, len(stream))
	for _, term := range joinIdeographic(stream) {
		for _, part := range splitTerm(term) {
			if utf8.RuneCountInString(part) >= MinTokenLength {
				tokens = append(tokens, part)
			}
		}
	}
	return tokens
}

// WeightedTokens tokenizes each field and repeats its output Weight times,
// concatenated in field order. Fields with non-positive weight are ignored.
func WeightedTokens(fields []Field) []string {
	var out []string
	for _, f := range fields {
		if f.Weight <= 0 || f.Text == "" {
			continue
		}
		toks := Tokenize(f.Text)
		for i := 0; i < f.Weight; i++ {
			out = append(out, toks...)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}

// joinIdeographic returns the stream's terms with touching ideographic
// tokens concatenated. The segmenter emits Han and hiragana one rune per
// token, which would otherwise fall under MinTokenLength.
func joinIdeographic(stream analysis.TokenStream) [][]byte {
	terms := make([][]byte, 0, len(stream))
	var prev *analysis.Token
	for _, tok := range stream {
		if prev != nil && tok.Type == analysis.Ideographic &&
			prev.Type == analysis.Ideographic && tok.Start == prev.End {
			last := len(terms) - 1
			terms[last] = append(terms[last], tok.Term...)
		} else {
			terms = append(terms, append([]byte(nil), tok.Term...))
		}
		prev = tok
	}
	return terms
}

func isTermRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// splitTerm breaks a segment on any rune that is not part of a term.
func splitTerm(term []byte) []string {
	var parts []string
	start := -1
	for i := 0; i < len(term); {
		r, size := utf8.DecodeRune(term[i:])
		if isTermRune(r) {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			parts = append(parts, string(term[start:i]))
			start = -1
		}
		i += size
	}
	if start >= 0 {
		parts = append(parts, string(term[start:]))
	}
	return parts
}
