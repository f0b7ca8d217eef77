package memory

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"the": {}, "is": {}, "in": {}, "at": {}, "which": {}, "on": {}, "and": {},
	"a": {}, "an": {}, "of": {}, "for": {}, "to": {}, "by": {}, "with": {},
	"that": {}, "this": {}, "these": {}, "those": {}, "are": {}, "be": {},
}

// Tokenize lowercases text, replaces punctuation with spaces and drops
// stopwords and single letters. Numbers are kept at any length.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, text)

	var tokens []string
	for _, field := range strings.Fields(cleaned) {
		if len(field) <= 1 && !isNumber(field) {
			continue
		}
		if _, stop := stopwords[field]; stop {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

// Jaccard is the token-set similarity |A∩B| / |A∪B|. Two empty sets are identical.
func Jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// SameNumbers reports whether both token lists carry the same set of
// numeric tokens, ignoring leading zeros.
func SameNumbers(a, b []string) bool {
	numbersA := numberSet(a)
	numbersB := numberSet(b)
	if len(numbersA) != len(numbersB) {
		return false
	}
	for number := range numbersA {
		if _, ok := numbersB[number]; !ok {
			return false
		}
	}
	return true
}

func numberSet(tokens []string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, token := range tokens {
		if isNumber(token) {
			set[strings.TrimLeft(token, "0")] = struct{}{}
		}
	}
	return set
}

func isNumber(token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return false
		}
	}
	return true
}

func normalizeQuestion(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}
