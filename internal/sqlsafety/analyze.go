package sqlsafety

import (
	"strings"

	"github.com/dataplane-ai/analyst-agent/internal/agenterrors"
)

// TableRef is one FROM/JOIN target, with its qualification split out.
type TableRef struct {
	Database string
	Schema   string
	Table    string
	Alias    string
}

// Qualified reports whether the reference carries at least a schema
// qualifier (schema.table or database.schema.table).
func (t TableRef) Qualified() bool { return t.Schema != "" }

// JoinEdge records a join between two table aliases (or bare names when no
// alias was given).
type JoinEdge struct {
	LeftTable  string
	RightTable string
}

// CTEName is a WITH-clause-defined name; referencing it downstream without
// further qualification is still flagged vague since a single-token
// identifier carries no schema, by construction.
type CTEName struct {
	Name string
}

// Analysis is the result of analyzing one SQL statement's table/column
// references.
type Analysis struct {
	Tables  []TableRef
	Joins   []JoinEdge
	CTEs    []CTEName
	Columns []string
}

// Analyze extracts table, join, CTE, and selected-column references from
// sql and rejects any unqualified table or column reference as
// VagueReferences, per §4.5.
func Analyze(sql string) (*Analysis, error) {
	toks := lex(sql)
	stmts := splitStatements(toks)
	if len(stmts) == 0 {
		return nil, agenterrors.New(agenterrors.KindSqlInvalid, "Failed to parse SQL query: empty statement")
	}

	a := &Analysis{}
	for _, stmt := range stmts {
		a.CTEs = append(a.CTEs, extractCTEs(stmt)...)
		a.Tables = append(a.Tables, extractTables(stmt)...)
		a.Joins = append(a.Joins, extractJoins(stmt)...)
		a.Columns = append(a.Columns, extractSelectColumns(stmt)...)
	}

	var vagueTables []string
	for _, t := range a.Tables {
		if !t.Qualified() {
			vagueTables = append(vagueTables, t.Table)
		}
	}
	var vagueColumns []string
	for _, c := range a.Columns {
		if isVagueColumn(c) {
			vagueColumns = append(vagueColumns, c)
		}
	}
	if len(vagueTables) > 0 {
		return a, agenterrors.VagueReferences(vagueTables, nil)
	}
	if len(vagueColumns) > 0 {
		return a, agenterrors.VagueReferences(nil, vagueColumns)
	}
	return a, nil
}

func extractCTEs(stmt []token) []CTEName {
	if len(stmt) == 0 || strings.ToLower(stmt[0].text) != "with" {
		return nil
	}
	var out []CTEName
	i := 1
	for i < len(stmt) {
		if stmt[i].kind != tokIdent && stmt[i].kind != tokKeyword {
			break
		}
		name := stmt[i].text
		i++
		if i < len(stmt) && strings.ToLower(stmt[i].text) == "as" {
			i++
		}
		if i < len(stmt) && stmt[i].kind == tokLParen {
			depth := 0
			for i < len(stmt) {
				if stmt[i].kind == tokLParen {
					depth++
				}
				if stmt[i].kind == tokRParen {
					depth--
					if depth == 0 {
						i++
						break
					}
				}
				i++
			}
		}
		out = append(out, CTEName{Name: name})
		if i < len(stmt) && stmt[i].kind == tokComma {
			i++
			continue
		}
		break
	}
	return out
}

// extractTables scans for FROM/JOIN followed by a dotted identifier chain
// and an optional alias. It intentionally does not track scope/nesting: a
// reference inside a subquery is still a reference the safety analysis must
// see, and flattening avoids the complexity of a full scope tree that §4.5
// does not require.
func extractTables(stmt []token) []TableRef {
	var out []TableRef
	for i := 0; i < len(stmt); i++ {
		word := strings.ToLower(stmt[i].text)
		if stmt[i].kind != tokKeyword || (word != "from" && word != "join") {
			continue
		}
		j := i + 1
		if j < len(stmt) && stmt[j].kind == tokLParen {
			continue // derived table/subquery, not a bare reference
		}
		parts, next := readDottedIdent(stmt, j)
		if len(parts) == 0 {
			continue
		}
		ref := TableRef{}
		switch len(parts) {
		case 1:
			ref.Table = parts[0]
		case 2:
			ref.Schema, ref.Table = parts[0], parts[1]
		default:
			ref.Database, ref.Schema, ref.Table = parts[0], parts[1], parts[2]
		}
		k := next
		if k < len(stmt) && strings.ToLower(stmt[k].text) == "as" {
			k++
		}
		if k < len(stmt) && stmt[k].kind == tokIdent && !isKeyword(stmt[k].text) {
			ref.Alias = stmt[k].text
		}
		out = append(out, ref)
		i = next - 1
	}
	return out
}

// readDottedIdent reads an identifier, or an identifier.identifier(.identifier)
// chain, starting at index from. It returns the parts and the index just
// past the chain.
func readDottedIdent(stmt []token, from int) ([]string, int) {
	if from >= len(stmt) || (stmt[from].kind != tokIdent) {
		return nil, from
	}
	parts := []string{stmt[from].text}
	i := from + 1
	for i+1 < len(stmt) && stmt[i].kind == tokDot && stmt[i+1].kind == tokIdent {
		parts = append(parts, stmt[i+1].text)
		i += 2
	}
	return parts, i
}

func extractJoins(stmt []token) []JoinEdge {
	tables := extractTables(stmt)
	if len(tables) < 2 {
		return nil
	}
	var out []JoinEdge
	nameOf := func(t TableRef) string {
		if t.Alias != "" {
			return t.Alias
		}
		return t.Table
	}
	for i := 0; i+1 < len(tables); i++ {
		out = append(out, JoinEdge{LeftTable: nameOf(tables[i]), RightTable: nameOf(tables[i+1])})
	}
	return out
}

// extractSelectColumns returns the raw text of every top-level SELECT-list
// expression in stmt, split on top-level commas.
func extractSelectColumns(stmt []token) []string {
	if len(stmt) == 0 {
		return nil
	}
	start := -1
	for i, t := range stmt {
		if t.kind == tokKeyword && strings.ToLower(t.text) == "select" {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}
	if start < len(stmt) && strings.ToLower(stmt[start].text) == "distinct" {
		start++
	}

	end := len(stmt)
	for i := start; i < len(stmt); i++ {
		if stmt[i].kind == tokKeyword && strings.ToLower(stmt[i].text) == "from" {
			end = i
			break
		}
	}

	var cols []string
	var cur []token
	depth := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		var b strings.Builder
		for i, t := range cur {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(t.text)
		}
		cols = append(cols, strings.TrimSpace(b.String()))
		cur = nil
	}
	for i := start; i < end; i++ {
		t := stmt[i]
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		}
		if t.kind == tokComma && depth == 0 {
			flush()
			continue
		}
		cur = append(cur, t)
	}
	flush()
	return cols
}

// isVagueColumn reports whether a SELECT-list expression references any bare
// (unqualified) column identifier. Star and fully dotted references
// (alias.column) are exempt.
func isVagueColumn(expr string) bool {
	if expr == "*" || strings.HasSuffix(expr, ".*") {
		return false
	}
	toks := lex(expr)
	for i, t := range toks {
		if t.kind != tokIdent || isKeyword(t.text) {
			continue
		}
		// skip function names (identifier immediately followed by '(')
		if i+1 < len(toks) && toks[i+1].kind == tokLParen {
			continue
		}
		// skip an alias introduced by AS (the name being assigned, not read)
		if i > 0 && toks[i-1].kind == tokKeyword && strings.ToLower(toks[i-1].text) == "as" {
			continue
		}
		qualified := i > 0 && toks[i-1].kind == tokDot
		followedByDot := i+1 < len(toks) && toks[i+1].kind == tokDot
		if !qualified && !followedByDot {
			return true
		}
	}
	return false
}
