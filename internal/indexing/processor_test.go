package indexing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextEmpty(t *testing.T) {
	assert.Nil(t, chunkText("", 100, 20))
	assert.Nil(t, chunkText("   \n\t", 100, 20))
}

func TestChunkTextShortContentSingleChunk(t *testing.T) {
	chunks := chunkText("A short chapter.", 100, 20)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short chapter.", chunks[0])
}

func TestChunkTextSplitsOnWordBoundaries(t *testing.T) {
	text := strings.Repeat("word ", 100) // 500 chars
	chunks := chunkText(text, 120, 20)

	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 120)
		for _, w := range strings.Fields(chunk) {
			assert.Equal(t, "word", w)
		}
	}
}

func TestChunkTextOverlapRepeatsTail(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 30)
	chunks := chunkText(text, 100, 30)
	require.Greater(t, len(chunks), 1)

	// The head of each chunk restates the tail of the previous one.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i][:10]
		assert.Contains(t, chunks[i-1], strings.TrimSpace(head))
	}
}

func TestChunkTextCoversAllContent(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("neurosurgery content segment ", 50))
	chunks := chunkText(text, 200, 40)

	require.NotEmpty(t, chunks)
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
	assert.True(t, strings.HasPrefix(text, chunks[0]))
}

func TestNearestHeading(t *testing.T) {
	content := "# Aneurysms\n\nIntro paragraph text.\n\n## Diagnosis\n\nCT angiography is first line.\n\n## Treatment\n\nClipping or coiling."

	assert.Equal(t, "Diagnosis", nearestHeading(content, "CT angiography is first line."))
	assert.Equal(t, "Treatment", nearestHeading(content, "Clipping or coiling."))
	assert.Equal(t, "Aneurysms", nearestHeading(content, "Intro paragraph text."))
	assert.Empty(t, nearestHeading(content, "not present anywhere"))
}
