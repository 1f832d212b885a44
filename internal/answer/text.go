package answer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MatchText compares open-ended text answers after case folding, dropping
// punctuation and collapsing whitespace. Empty input never matches.
func MatchText(input, canonical string) bool {
	a := foldText(input)
	if a == "" {
		return false
	}
	return a == foldText(canonical)
}

func foldText(s string) string {
	var b strings.Builder
	space := false
	for _, r := range norm.NFKC.String(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
