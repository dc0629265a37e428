package pii

import (
	"fmt"
	"unicode/utf8"
)

// ChunkText splits text into windows for a detector with a bounded input
// length.  The cursor advances by size; each window reaches back overlap
// bytes (at least one, less than size) before the cursor so entities straddling a boundary get left context.
//
//	ChunkText("0123456789", 4, 1) → [0,4) [3,8) [7,10)
//
// Window edges that fall inside a multi-byte rune are moved back to the rune
// start.  Empty text yields no chunks.
func ChunkText(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 || overlap <= 0 || overlap >= size {
		return nil, ErrInvalidChunking.WithDetail(fmt.Sprintf("size=%d overlap=%d", size, overlap))
	}

	n := len(text)
	chunks := make([]Chunk, 0, n/size+1)
	for pos := 0; pos < n; pos += size {
		start := runeStart(text, max(0, pos-overlap))
		end := runeStart(text, min(pos+size, n))
		if end <= start {
			// A window narrower than one rune; widen to the next rune edge.
			end = runeEnd(text, start)
		}
		chunks = append(chunks, Chunk{Start: start, End: end, Text: text[start:end]})
	}
	return chunks, nil
}

// runeStart moves i back to the first byte of the rune containing it.
func runeStart(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeEnd returns the end offset of the rune starting at i.
func runeEnd(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	_, w := utf8.DecodeRuneInString(s[i:])
	return i + w
}

//Personal.AI order the ending
