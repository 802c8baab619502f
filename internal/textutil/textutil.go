package textutil

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// SplitSentences segments text into sentences. Uses prose's segmenter;
// falls back to naive punctuation splitting if the document fails to
// build (prose errors on some degenerate inputs).
func SplitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithTagging(false),
	)
	if err == nil {
		sentences := doc.Sentences()
		out := make([]string, 0, len(sentences))
		for _, s := range sentences {
			trimmed := strings.TrimSpace(s.Text)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	return naiveSplit(text)
}

func naiveSplit(text string) []string {
	var out []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			trimmed := strings.TrimSpace(current.String())
			if trimmed != "" {
				out = append(out, trimmed)
			}
			current.Reset()
		}
	}

	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		out = append(out, trimmed)
	}

	return out
}

// Tokenize lowercases and splits into word tokens, dropping punctuation
// and short stopword-like fragments.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()[]{}\"'")
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// WordOverlapRatio returns the fraction of tokens in a that also occur
// in b.
func WordOverlapRatio(a, b string) float64 {
	tokensA := Tokenize(a)
	if len(tokensA) == 0 {
		return 0
	}

	setB := make(map[string]struct{})
	for _, tok := range Tokenize(b) {
		setB[tok] = struct{}{}
	}

	matched := 0
	for _, tok := range tokensA {
		if _, ok := setB[tok]; ok {
			matched++
		}
	}

	return float64(matched) / float64(len(tokensA))
}
