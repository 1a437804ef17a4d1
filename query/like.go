package query

import "strings"

// EscapeChar is the escape character declared on every LIKE predicate.
const EscapeChar = '\\'

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes the LIKE wildcards in s so it matches literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Matches evaluates an SQL LIKE pattern against value in memory, honoring
// EscapeChar. Matching is case sensitive; stores differ here (sqlite folds
// ASCII case by default, postgres does not).
func Matches(pattern, value string) bool {
	type token struct {
		r       rune
		literal bool
	}
	var tokens []token
	escaped := false
	for _, r := range pattern {
		if escaped {
			tokens = append(tokens, token{r: r, literal: true})
			escaped = false
			continue
		}
		if r == EscapeChar {
			escaped = true
			continue
		}
		tokens = append(tokens, token{r: r})
	}
	if escaped {
		tokens = append(tokens, token{r: EscapeChar, literal: true})
	}

	text := []rune(value)
	// prev[j] reports whether tokens[:i] matches text[:j]
	prev := make([]bool, len(text)+1)
	prev[0] = true
	for _, tok := range tokens {
		cur := make([]bool, len(text)+1)
		switch {
		case !tok.literal && tok.r == '%':
			cur[0] = prev[0]
			for j := 1; j <= len(text); j++ {
				cur[j] = prev[j] || cur[j-1]
			}
		case !tok.literal && tok.r == '_':
			for j := 1; j <= len(text); j++ {
				cur[j] = prev[j-1]
			}
		default:
			for j := 1; j <= len(text); j++ {
				cur[j] = prev[j-1] && text[j-1] == tok.r
			}
		}
		prev = cur
	}
	return prev[len(text)]
}
