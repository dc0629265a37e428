package pii

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_Example(t *testing.T) {
	chunks, err := ChunkText("0123456789", 4, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, Chunk{Start: 0, End: 4, Text: "0123"}, chunks[0])
	assert.Equal(t, Chunk{Start: 3, End: 8, Text: "34567"}, chunks[1])
	assert.Equal(t, Chunk{Start: 7, End: 10, Text: "789"}, chunks[2])
}

func TestChunkText_Empty(t *testing.T) {
	chunks, err := ChunkText("", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkText_InvalidParameters(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"zero overlap", 10, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ChunkText("text", tc.size, tc.overlap)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidChunking)
		})
	}
}

func TestChunkText_CoversEveryByte(t *testing.T) {
	text := "Die Müllers wohnen in der Hauptstraße 5 in Köln und grüßen herzlich."
	chunks, err := ChunkText(text, 16, 5)
	require.NoError(t, err)

	covered := make([]bool, len(text))
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text), "chunk %d-%d splits a rune", c.Start, c.End)
		assert.Equal(t, text[c.Start:c.End], c.Text)
		for i := c.Start; i < c.End; i++ {
			covered[i] = true
		}
	}
	for i, ok := range covered {
		assert.True(t, ok, "byte %d not covered", i)
	}
}

func TestChunkText_SnapsToRuneStart(t *testing.T) {
	chunks, err := ChunkText("ääää", 3, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, Chunk{Start: 0, End: 2, Text: "ä"}, chunks[0])
	assert.Equal(t, Chunk{Start: 2, End: 6, Text: "ää"}, chunks[1])
	assert.Equal(t, Chunk{Start: 4, End: 8, Text: "ää"}, chunks[2])
}

//Personal.AI order the ending
