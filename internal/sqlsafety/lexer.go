// Package sqlsafety gates metric SQL to read-only statements and flags
// unqualified table/column references, per §4.5. No SQL parser exists
// anywhere in the retrieved example pack (no sqlparser/vitess/pg_query_go/
// tidb dependency in any go.mod), so this package is deliberately built on
// the standard library alone.
package sqlsafety

import "strings"

type tokenKind int

const (
	tokKeyword tokenKind = iota
	tokIdent
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokString
	tokNumber
	tokOperator
	tokStar
	tokSemicolon
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

// lex splits sql into a flat token stream. It is deliberately permissive: it
// never errors, since malformed SQL should surface as a downstream gate or
// analyzer failure with a precise message rather than a lexer panic.
func lex(sql string) []token {
	var toks []token
	r := []rune(sql)
	n := len(r)
	i := 0
	for i < n {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && i+1 < n && r[i+1] == '-':
			for i < n && r[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && r[i+1] == '*':
			i += 2
			for i+1 < n && !(r[i] == '*' && r[i+1] == '/') {
				i++
			}
			i += 2
		case c == '\'':
			start := i
			i++
			for i < n {
				if r[i] == '\'' {
					if i+1 < n && r[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			toks = append(toks, token{tokString, string(r[start:i])})
		case c == '"' || c == '`':
			quote := c
			start := i
			i++
			for i < n && r[i] != quote {
				i++
			}
			if i < n {
				i++
			}
			toks = append(toks, token{tokIdent, string(r[start:i])})
		case c == '.':
			toks = append(toks, token{tokDot, "."})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ';':
			toks = append(toks, token{tokSemicolon, ";"})
			i++
		case c == '*':
			toks = append(toks, token{tokStar, "*"})
			i++
		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(r[i]) {
				i++
			}
			word := string(r[start:i])
			kind := tokIdent
			if isKeyword(word) {
				kind = tokKeyword
			}
			toks = append(toks, token{kind, word})
		case c >= '0' && c <= '9':
			start := i
			for i < n && (r[i] >= '0' && r[i] <= '9' || r[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, string(r[start:i])})
		default:
			toks = append(toks, token{tokOperator, string(c)})
			i++
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

var keywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "join": {}, "inner": {}, "left": {},
	"right": {}, "full": {}, "outer": {}, "on": {}, "group": {}, "by": {},
	"order": {}, "having": {}, "limit": {}, "offset": {}, "with": {}, "as": {},
	"union": {}, "all": {}, "intersect": {}, "except": {}, "distinct": {},
	"insert": {}, "update": {}, "delete": {}, "merge": {}, "upsert": {},
	"create": {}, "drop": {}, "alter": {}, "truncate": {}, "grant": {}, "revoke": {},
	"view": {}, "table": {}, "index": {}, "if": {}, "not": {}, "exists": {},
	"into": {}, "values": {}, "set": {}, "and": {}, "or": {}, "in": {},
	"case": {}, "when": {}, "then": {}, "else": {}, "end": {}, "replace": {},
	"materialized": {}, "function": {}, "procedure": {}, "trigger": {},
	"schema": {}, "database": {}, "temporary": {}, "temp": {},
}

func isKeyword(word string) bool {
	_, ok := keywords[strings.ToLower(word)]
	return ok
}
