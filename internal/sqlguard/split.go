package sqlguard

import "strings"

// SplitStatements breaks a script into statements on semicolons that sit
// outside quoted text and comments. Comments between statements are dropped.
// Scripts are lexed as portable SQL: no `#` comments or backslash escapes.
func SplitStatements(script string) ([]string, error) {
	tokens, err := scan(script, "")
	if err != nil {
		return nil, err
	}

	var statements []string
	first := -1
	last := -1
	for i, tok := range tokens {
		if tok.kind == tokenSemicolon {
			if first >= 0 {
				statements = append(statements, strings.TrimSpace(script[tokens[first].start:tokens[last].end]))
			}
			first, last = -1, -1
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first >= 0 {
		statements = append(statements, strings.TrimSpace(script[tokens[first].start:tokens[last].end]))
	}
	return statements, nil
}
