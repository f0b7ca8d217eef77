// Package sqlguard decides whether generated SQL is safe to execute.
//
// Only a single SELECT or WITH statement is accepted. Keywords are detected
// on a token stream with string literals, quoted identifiers and comments
// removed, so `SELECT 'drop table'` passes while `WITH x AS (DELETE ...)` does not.
//
// Lexing follows the target dialect: `#` comments and backslash escapes
// exist only on MySQL, and E'...' strings only on Postgres and DuckDB. A
// second dialect-free pass over the raw text rejects any statement separator
// that a standard SQL lexer would see, so a statement has to look like one
// SELECT to both readings.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/asksql/asksql/internal/database"
)

var ErrUnsafeSQL = errors.New("unsafe query refused")

// RejectionError describes why a statement was refused.
type RejectionError struct {
	Reason  string
	Keyword string
}

func (e *RejectionError) Error() string {
	if e.Keyword != "" {
		return fmt.Sprintf("%s: %s (%s)", ErrUnsafeSQL, e.Reason, e.Keyword)
	}
	return fmt.Sprintf("%s: %s", ErrUnsafeSQL, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrUnsafeSQL
}

var deniedKeywords = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "ALTER": {},
	"CREATE": {}, "TRUNCATE": {}, "MERGE": {}, "GRANT": {}, "REVOKE": {},
	"COPY": {}, "CALL": {}, "EXEC": {}, "EXECUTE": {}, "LOCK": {},
	"VACUUM": {}, "ATTACH": {}, "DETACH": {}, "PRAGMA": {}, "INTO": {},
}

// Validate returns the statement with leading comments and trailing
// semicolons removed, or a *RejectionError.
func Validate(raw string, dialect database.Dialect) (string, error) {
	if separatorOutsideQuotes(raw) {
		return "", &RejectionError{Reason: "multiple statements are not allowed"}
	}
	tokens, err := scan(raw, dialect)
	if err != nil {
		return "", &RejectionError{Reason: err.Error()}
	}
	if len(tokens) == 0 {
		return "", &RejectionError{Reason: "empty statement"}
	}

	first := tokens[0]
	if first.kind != tokenWord || (first.upper != "SELECT" && first.upper != "WITH") {
		return "", &RejectionError{Reason: "only SELECT or WITH statements are allowed", Keyword: first.text}
	}

	end := len(tokens)
	for end > 0 && tokens[end-1].kind == tokenSemicolon {
		end--
	}
	tokens = tokens[:end]

	for _, tok := range tokens {
		switch tok.kind {
		case tokenSemicolon:
			return "", &RejectionError{Reason: "multiple statements are not allowed"}
		case tokenWord:
			if _, denied := deniedKeywords[tok.upper]; denied {
				return "", &RejectionError{Reason: "data-modifying keyword", Keyword: tok.upper}
			}
		}
	}

	last := tokens[len(tokens)-1]
	return strings.TrimSpace(raw[first.start:last.end]), nil
}

// IsReadOnly reports whether Validate accepts raw.
func IsReadOnly(raw string, dialect database.Dialect) bool {
	_, err := Validate(raw, dialect)
	return err == nil
}

// separatorOutsideQuotes reports whether raw has a semicolon followed by
// anything but whitespace or further semicolons, outside '...' and "..."
// quotes. Comments and backslashes are not understood here.
func separatorOutsideQuotes(raw string) bool {
	n := len(raw)
	for i := 0; i < n; i++ {
		switch raw[i] {
		case '\'', '"':
			end, err := skipQuoted(raw, i, raw[i], false)
			if err != nil {
				return false
			}
			i = end - 1
		case ';':
			rest := strings.TrimLeft(raw[i+1:], " \t\n\r\f\v;")
			if rest != "" {
				return true
			}
			return false
		}
	}
	return false
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenSemicolon
	tokenOther
)

type token struct {
	kind  tokenKind
	text  string
	upper string
	start int
	end   int
}

func scan(sqlText string, dialect database.Dialect) ([]token, error) {
	mysql := dialect == database.MySQL
	var tokens []token
	i := 0
	n := len(sqlText)
	for i < n {
		c := sqlText[i]
		switch {
		case isSpace(c):
			i++
		case c == '-' && i+1 < n && sqlText[i+1] == '-' && (!mysql || i+2 >= n || sqlText[i+2] <= ' '):
			// MySQL needs whitespace after the dashes.
			for i < n && sqlText[i] != '\n' {
				i++
			}
		case c == '#' && mysql:
			for i < n && sqlText[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && sqlText[i+1] == '*':
			if i+2 < n && sqlText[i+2] == '!' {
				return nil, errors.New("executable comments are not allowed")
			}
			closeAt := strings.Index(sqlText[i+2:], "*/")
			if closeAt < 0 {
				return nil, errors.New("unterminated block comment")
			}
			i += 2 + closeAt + 2
		case c == '\'' || c == '"' || (c == '`' && mysql):
			backslash := mysql && c != '`'
			if !mysql && c == '\'' && len(tokens) > 0 {
				// E'...' escape string.
				prev := tokens[len(tokens)-1]
				backslash = prev.kind == tokenWord && prev.end == i && prev.upper == "E"
			}
			end, err := skipQuoted(sqlText, i, c, backslash)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenOther, text: sqlText[i:end], start: i, end: end})
			i = end
		case c == '$' && !mysql:
			end, ok, err := skipDollarQuoted(sqlText, i)
			if err != nil {
				return nil, err
			}
			if !ok {
				end = i + 1
			}
			tokens = append(tokens, token{kind: tokenOther, text: sqlText[i:end], start: i, end: end})
			i = end
		case c == ';':
			tokens = append(tokens, token{kind: tokenSemicolon, text: ";", start: i, end: i + 1})
			i++
		case isWordByte(c):
			start := i
			for i < n && isWordByte(sqlText[i]) {
				i++
			}
			word := sqlText[start:i]
			tokens = append(tokens, token{kind: tokenWord, text: word, upper: strings.ToUpper(word), start: start, end: i})
		default:
			tokens = append(tokens, token{kind: tokenOther, text: sqlText[i : i+1], start: i, end: i + 1})
			i++
		}
	}
	return tokens, nil
}

// skipQuoted returns the index after the closing quote. A doubled quote
// character is an escaped quote. Backslash escapes count only when asked.
func skipQuoted(sqlText string, start int, quote byte, backslash bool) (int, error) {
	for i := start + 1; i < len(sqlText); i++ {
		switch sqlText[i] {
		case '\\':
			if backslash {
				i++
			}
		case quote:
			if i+1 < len(sqlText) && sqlText[i+1] == quote {
				i++
				continue
			}
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated quoted text starting at offset %d", start)
}

// skipDollarQuoted handles $tag$...$tag$ strings. ok is false when the
// dollar sign does not open such a string (e.g. a $1 placeholder).
func skipDollarQuoted(sqlText string, start int) (int, bool, error) {
	j := start + 1
	for j < len(sqlText) && (isLetter(sqlText[j]) || sqlText[j] == '_' || (j > start+1 && isDigit(sqlText[j]))) {
		j++
	}
	if j >= len(sqlText) || sqlText[j] != '$' {
		return 0, false, nil
	}
	tag := sqlText[start : j+1]
	closeAt := strings.Index(sqlText[j+1:], tag)
	if closeAt < 0 {
		return 0, false, fmt.Errorf("unterminated dollar-quoted text starting at offset %d", start)
	}
	return j + 1 + closeAt + len(tag), true, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordByte(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '_' || c >= 0x80
}
