package sqlsafety

import (
	"strings"

	"github.com/dataplane-ai/analyst-agent/internal/agenterrors"
)

// ValidateViewStatement is the permissive gate used for view materialization
// (§4.5): it accepts only CREATE [OR REPLACE] VIEW ... AS SELECT ... and
// DROP VIEW [IF EXISTS] ..., rejecting every other write/DDL form the read
// gate also rejects.
func ValidateViewStatement(sql string) error {
	toks := lex(sql)
	statements := splitStatements(toks)
	if len(statements) != 1 {
		return agenterrors.New(agenterrors.KindSqlUnsafe, "view statement must be exactly one statement")
	}
	stmt := statements[0]
	if len(stmt) == 0 {
		return agenterrors.New(agenterrors.KindSqlInvalid, "Failed to parse SQL query: empty statement")
	}

	switch strings.ToLower(stmt[0].text) {
	case "create":
		return validateCreateView(stmt)
	case "drop":
		return validateDropView(stmt)
	default:
		return agenterrors.New(agenterrors.KindSqlUnsafe, "write gate only accepts CREATE VIEW or DROP VIEW")
	}
}

func validateCreateView(stmt []token) error {
	i := 1
	if i < len(stmt) && strings.ToLower(stmt[i].text) == "or" {
		i++
		if i < len(stmt) && strings.ToLower(stmt[i].text) == "replace" {
			i++
		}
	}
	if i >= len(stmt) || strings.ToLower(stmt[i].text) != "view" {
		return agenterrors.New(agenterrors.KindSqlUnsafe, "CREATE statement must target a VIEW")
	}
	i++
	for i < len(stmt) && strings.ToLower(stmt[i].text) != "as" {
		i++
	}
	if i >= len(stmt) {
		return agenterrors.New(agenterrors.KindSqlUnsafe, "CREATE VIEW must have an AS SELECT body")
	}
	body := stmt[i+1:]
	return validateStatement(append(body, token{kind: tokEOF}))
}

func validateDropView(stmt []token) error {
	i := 1
	if i >= len(stmt) || strings.ToLower(stmt[i].text) != "view" {
		return agenterrors.New(agenterrors.KindSqlUnsafe, "DROP statement must target a VIEW")
	}
	return nil
}
