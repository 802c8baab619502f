package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	sentences := SplitSentences("Aneurysms are vascular lesions. They may rupture. Treatment varies.")
	require.Len(t, sentences, 3)
	assert.Equal(t, "Aneurysms are vascular lesions.", sentences[0])
	assert.Equal(t, "Treatment varies.", sentences[2])
}

func TestSplitSentencesEmpty(t *testing.T) {
	assert.Empty(t, SplitSentences(""))
}

func TestSplitSentencesNoTerminator(t *testing.T) {
	sentences := SplitSentences("a fragment without punctuation")
	require.Len(t, sentences, 1)
	assert.Equal(t, "a fragment without punctuation", sentences[0])
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The Patient's CT-angiogram, reviewed (twice), was clear!")
	assert.Contains(t, tokens, "the")
	assert.Contains(t, tokens, "ct-angiogram")
	assert.Contains(t, tokens, "twice")
	assert.NotContains(t, tokens, "twice,")
}

func TestTokenizeDropsShortFragments(t *testing.T) {
	tokens := Tokenize("a CT of it is ok")
	assert.NotContains(t, tokens, "a")
	assert.NotContains(t, tokens, "of")
	assert.NotContains(t, tokens, "it")
	assert.NotContains(t, tokens, "is")
	assert.NotContains(t, tokens, "ok")
}

func TestWordOverlapRatio(t *testing.T) {
	assert.Equal(t, 1.0, WordOverlapRatio("vasospasm treatment", "vasospasm treatment options"))
	assert.Zero(t, WordOverlapRatio("", "anything"))
	assert.Zero(t, WordOverlapRatio("lumbar fusion", "cranial anatomy"))

	ratio := WordOverlapRatio("clipping versus coiling outcomes", "clipping outcomes registry")
	assert.InDelta(t, 0.5, ratio, 0.001)
}
