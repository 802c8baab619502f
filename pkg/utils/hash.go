package utils

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"
)

func HashString(input string) string {
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash[:16])
}

// NormalizeTitle lowercases and strips everything but letters and digits,
// so near-identical titles collapse to the same dedup key.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
