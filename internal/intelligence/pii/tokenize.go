package pii

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Token is a word or punctuation token with byte offsets.
type Token struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// NormalizeText returns the NFC form of text.  Detection and every offset
// downstream refer to the normalised document.
func NormalizeText(text string) string {
	if norm.NFC.IsNormalString(text) {
		return text
	}
	return norm.NFC.String(text)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

// Tokenize splits text into maximal runs of word runes and single
// punctuation or symbol runes.  Whitespace is never part of a token.
func Tokenize(text string) []Token {
	var toks []Token
	i := 0
	for i < len(text) {
		r, w := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(r):
			i += w
		case isWordRune(r):
			start := i
			for i < len(text) {
				r, w = utf8.DecodeRuneInString(text[i:])
				if !isWordRune(r) {
					break
				}
				i += w
			}
			toks = append(toks, Token{Text: text[start:i], Start: start, End: i})
		default:
			toks = append(toks, Token{Text: text[i : i+w], Start: i, End: i + w})
			i += w
		}
	}
	return toks
}

// wordTokens is Tokenize restricted to word runs.
func wordTokens(text string) []Token {
	all := Tokenize(text)
	out := all[:0]
	for _, t := range all {
		r, _ := utf8.DecodeRuneInString(t.Text)
		if isWordRune(r) {
			out = append(out, t)
		}
	}
	return out
}

// CountSentences counts sentences ended by '.', '!' or '?' followed by
// whitespace or end of text.  Trailing text without a terminator counts as
// one more sentence.
func CountSentences(text string) int {
	n := 0
	pending := false
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsSpace(r) {
			pending = true
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?') {
			j++
		}
		if j == len(runes) || unicode.IsSpace(runes[j]) {
			if pending {
				n++
			}
			pending = false
			i = j - 1
		}
	}
	if pending {
		n++
	}
	return n
}

// TokenIndex maps byte offsets to token indices.
type TokenIndex struct {
	tokens  []Token
	byStart map[int]int
	byEnd   map[int]int
}

// NewTokenIndex tokenizes text and indexes token boundaries.
func NewTokenIndex(text string) *TokenIndex {
	toks := Tokenize(text)
	idx := &TokenIndex{
		tokens:  toks,
		byStart: make(map[int]int, len(toks)),
		byEnd:   make(map[int]int, len(toks)),
	}
	for i, t := range toks {
		idx.byStart[t.Start] = i
		idx.byEnd[t.End] = i + 1
	}
	return idx
}

// Len returns the number of tokens.
func (x *TokenIndex) Len() int { return len(x.tokens) }

// Tokens returns the indexed tokens.
func (x *TokenIndex) Tokens() []Token { return x.tokens }

// Convert returns the half-open token range covering [start,end).  ok is
// false when either edge does not sit on a token boundary.
func (x *TokenIndex) Convert(start, end int) (tokStart, tokEnd int, ok bool) {
	tokStart, ok1 := x.byStart[start]
	tokEnd, ok2 := x.byEnd[end]
	if !ok1 || !ok2 || tokEnd <= tokStart {
		return 0, 0, false
	}
	return tokStart, tokEnd, true
}

// AlignSpans keeps the spans whose edges sit on token boundaries, returning
// their token ranges alongside, and the spans that could not be aligned.
func (x *TokenIndex) AlignSpans(spans []Span) (aligned []TokenSpan, dropped []Span) {
	aligned = make([]TokenSpan, 0, len(spans))
	for _, s := range spans {
		ts, te, ok := x.Convert(s.Start, s.End)
		if !ok {
			dropped = append(dropped, s)
			continue
		}
		aligned = append(aligned, TokenSpan{Span: s, TokenStart: ts, TokenEnd: te})
	}
	return aligned, dropped
}

// TokenSpan is a Span with its token range.
type TokenSpan struct {
	Span
	TokenStart int `json:"token_start"`
	TokenEnd   int `json:"token_end"`
}

// SpansOf strips token ranges.
func SpansOf(ts []TokenSpan) []Span {
	out := make([]Span, len(ts))
	for i, t := range ts {
		out[i] = t.Span
	}
	return out
}

// findWordOccurrences returns every case-insensitive occurrence of word in
// text that is not flanked by a word rune on either side.
func findWordOccurrences(text, word string) []Range {
	var out []Range
	for _, r := range findFold(text, word) {
		if r.Start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:r.Start])
			if isWordRune(prev) {
				continue
			}
		}
		if r.End < len(text) {
			next, _ := utf8.DecodeRuneInString(text[r.End:])
			if isWordRune(next) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// findFold returns every non-overlapping case-insensitive occurrence of
// needle in text, scanning left to right.
func findFold(text, needle string) []Range {
	if needle == "" {
		return nil
	}
	var out []Range
	for i := 0; i < len(text); {
		end, ok := hasFoldPrefix(text[i:], needle)
		if ok {
			out = append(out, Range{Start: i, End: i + end})
			i += end
			continue
		}
		_, w := utf8.DecodeRuneInString(text[i:])
		i += w
	}
	return out
}

// hasFoldPrefix reports whether s starts with needle under simple Unicode
// case folding and returns the byte length of the matched prefix of s.
func hasFoldPrefix(s, needle string) (int, bool) {
	i := 0
	for _, nr := range needle {
		if i >= len(s) {
			return 0, false
		}
		sr, w := utf8.DecodeRuneInString(s[i:])
		if sr != nr && !strings.EqualFold(string(sr), string(nr)) {
			return 0, false
		}
		i += w
	}
	return i, true
}

//Personal.AI order the ending
