package registry

import (
	"strings"
	"unicode"
)

// toSnake converts a Go identifier to snake_case. It is used to derive the
// default entity type of a registered model ("DogOwner" -> "dog_owner").
// Punctuation from reflected names (pointers, generic suffixes) is dropped
// because entity types end up as cache key prefixes.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false
	sep := func() {
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (nextLower && unicode.IsUpper(prev)) {
					sep()
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			sep()
		}
	}

	return strings.Trim(b.String(), "_")
}

// lowerCamel turns an exported Go field name into the logical field name used
// by queries: "Name" -> "name", "ID" -> "id", "BreedID" -> "breedID",
// "URLPath" -> "urlPath".
func lowerCamel(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n == 0 {
		return s
	}
	if n > 1 && n < len(runes) {
		// keep the last capital of an initialism when a word follows it
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
