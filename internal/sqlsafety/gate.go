package sqlsafety

import (
	"strings"

	"github.com/dataplane-ai/analyst-agent/internal/agenterrors"
)

// Dialect selects surface syntax quirks. The gate and analyzer in this
// package treat every dialect identically at the grammar level the spec
// cares about (statement shape, qualification); dialect only documents
// intent and is carried through for callers that need it (e.g. warehouse
// dry-run execution, out of scope here).
type Dialect string

const (
	DialectGeneric    Dialect = "generic"
	DialectPostgres   Dialect = "postgres"
	DialectMySQL      Dialect = "mysql"
	DialectSnowflake  Dialect = "snowflake"
	DialectBigQuery   Dialect = "bigquery"
	DialectDatabricks Dialect = "databricks"
	DialectMSSQL      Dialect = "mssql"
	DialectSQLite     Dialect = "sqlite"
	DialectRedshift   Dialect = "redshift"
)

var forbiddenKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "merge": {}, "upsert": {},
	"create": {}, "drop": {}, "alter": {}, "truncate": {}, "grant": {},
	"revoke": {}, "into": {}, "replace": {},
}

// Validate parses sql and accepts it only if every top-level statement is a
// read-only SELECT: SELECT itself, WITH ... SELECT, or a set operation
// (UNION/INTERSECT/EXCEPT) whose every branch is itself a safe SELECT.
// Subqueries are implicitly covered since they nest inside parens and this
// gate only looks for forbidden keywords at any depth.
func Validate(sql string, dialect Dialect) error {
	toks := lex(sql)
	statements := splitStatements(toks)
	if len(statements) == 0 {
		return agenterrors.New(agenterrors.KindSqlInvalid, "Failed to parse SQL query: empty statement")
	}
	for _, stmt := range statements {
		if err := validateStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements breaks a token stream into statements at top-level (depth
// zero) semicolons, dropping empty trailing statements.
func splitStatements(toks []token) [][]token {
	var out [][]token
	var cur []token
	depth := 0
	for _, t := range toks {
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		}
		if t.kind == tokSemicolon && depth == 0 {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		if t.kind == tokEOF {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			continue
		}
		cur = append(cur, t)
	}
	return out
}

func validateStatement(stmt []token) error {
	if len(stmt) == 0 {
		return agenterrors.New(agenterrors.KindSqlInvalid, "Failed to parse SQL query: empty statement")
	}
	first := strings.ToLower(stmt[0].text)
	startsSafe := stmt[0].kind == tokLParen || (stmt[0].kind == tokKeyword && (first == "select" || first == "with"))
	if !startsSafe {
		return agenterrors.New(agenterrors.KindSqlUnsafe,
			"statement does not begin with SELECT or WITH: "+previewTokens(stmt))
	}

	depth := 0
	for _, t := range stmt {
		switch t.kind {
		case tokLParen:
			depth++
			continue
		case tokRParen:
			depth--
			continue
		}
		if t.kind != tokKeyword {
			continue
		}
		word := strings.ToLower(t.text)
		if _, forbidden := forbiddenKeywords[word]; forbidden {
			return agenterrors.New(agenterrors.KindSqlUnsafe, "statement contains a write/DDL keyword: "+word)
		}
	}
	return nil
}

func previewTokens(stmt []token) string {
	var b strings.Builder
	for i, t := range stmt {
		if i > 5 {
			b.WriteString("...")
			break
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.text)
	}
	return b.String()
}
