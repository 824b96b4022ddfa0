package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitOutputChunksSingleChunk(t *testing.T) {
	chunks := splitOutputChunks(0, 0, []byte("hello"), 100)
	assert.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "hello", string(chunks[0].Data))
}

func TestSplitOutputChunksSpansMultipleChunks(t *testing.T) {
	// ChunkSize 4, output "abcdefghij" (10 bytes) starting at offset 0:
	// chunk 0 = "abcd", chunk 1 = "efgh", chunk 2 = "ij".
	chunks := splitOutputChunks(2, 0, []byte("abcdefghij"), 4)
	want := []string{"abcd", "efgh", "ij"}
	assert.Len(t, chunks, len(want))
	for i, data := range want {
		assert.Equal(t, 2, chunks[i].CommandIndex)
		assert.Equal(t, i, chunks[i].ChunkIndex)
		assert.Equal(t, data, string(chunks[i].Data))
	}
}

func TestSplitOutputChunksMidChunkStart(t *testing.T) {
	// ChunkSize 4, a write starting at byte offset 2 within chunk 0 that
	// spills into chunk 1.
	chunks := splitOutputChunks(0, 2, []byte("cdef"), 4)
	assert.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "cd", string(chunks[0].Data))
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.Equal(t, "ef", string(chunks[1].Data))
}

func TestSplitOutputChunksEmptyData(t *testing.T) {
	chunks := splitOutputChunks(0, 0, []byte{}, 4)
	assert.Empty(t, chunks)
}
