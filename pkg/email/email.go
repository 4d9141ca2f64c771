// Package email derives display data from e-mail addresses.
package email

import (
	"strings"
	"unicode"
)

const fallbackName = "Contribuinte"

// DisplayName builds a name from the local part of addr, e.g.
// "maria.souza+irpf@example.com" -> "Maria Souza". Digits and tag suffixes are
// dropped. Addresses without a usable local part yield "Contribuinte".
func DisplayName(addr string) string {
	local, _, _ := strings.Cut(addr, "@")
	local, _, _ = strings.Cut(local, "+")

	words := strings.FieldsFunc(local, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) == 0 {
		return fallbackName
	}
	for i, w := range words {
		words[i] = titleCase(w)
	}
	return strings.Join(words, " ")
}

func titleCase(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
