package schema

import (
	"fmt"
	"strings"
)

// QuoteRule decides which column names are double-quoted in generated SQL.
type QuoteRule string

const (
	// QuoteSpaces quotes only names containing a space or hyphen.
	QuoteSpaces QuoteRule = "spaces"
	// QuoteSafe quotes every name that is not a plain identifier or is a reserved word.
	QuoteSafe QuoteRule = "safe"
	// QuoteAlways quotes every name.
	QuoteAlways QuoteRule = "always"
)

func ParseQuoteRule(s string) (QuoteRule, error) {
	switch r := QuoteRule(strings.ToLower(strings.TrimSpace(s))); r {
	case QuoteSpaces, QuoteSafe, QuoteAlways:
		return r, nil
	case "":
		return QuoteSafe, nil
	default:
		return "", fmt.Errorf("unknown quote rule %q", s)
	}
}

// Quote renders name as it should appear in SQL under rule r.
func (r QuoteRule) Quote(name string) string {
	if r.NeedsQuotes(name) {
		return QuoteIdent(name)
	}
	return name
}

func (r QuoteRule) NeedsQuotes(name string) bool {
	switch r {
	case QuoteAlways:
		return true
	case QuoteSpaces:
		return strings.ContainsAny(name, " -")
	default:
		return !isPlainIdent(name) || IsReserved(name)
	}
}

// QuoteIdent double-quotes an identifier, escaping embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func isPlainIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// IsReserved reports whether name is an SQLite keyword.
func IsReserved(name string) bool {
	_, ok := reserved[strings.ToUpper(name)]
	return ok
}

var reserved = func() map[string]struct{} {
	words := []string{
		"ABORT", "ACTION", "ADD", "AFTER", "ALL", "ALTER", "ALWAYS", "ANALYZE", "AND", "AS", "ASC",
		"ATTACH", "AUTOINCREMENT", "BEFORE", "BEGIN", "BETWEEN", "BY", "CASCADE", "CASE", "CAST",
		"CHECK", "COLLATE", "COLUMN", "COMMIT", "CONFLICT", "CONSTRAINT", "CREATE", "CROSS",
		"CURRENT", "CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP", "DATABASE", "DEFAULT",
		"DEFERRABLE", "DEFERRED", "DELETE", "DESC", "DETACH", "DISTINCT", "DO", "DROP", "EACH",
		"ELSE", "END", "ESCAPE", "EXCEPT", "EXCLUDE", "EXCLUSIVE", "EXISTS", "EXPLAIN", "FAIL",
		"FILTER", "FIRST", "FOLLOWING", "FOR", "FOREIGN", "FROM", "FULL", "GENERATED", "GLOB",
		"GROUP", "GROUPS", "HAVING", "IF", "IGNORE", "IMMEDIATE", "IN", "INDEX", "INDEXED",
		"INITIALLY", "INNER", "INSERT", "INSTEAD", "INTERSECT", "INTO", "IS", "ISNULL", "JOIN",
		"KEY", "LAST", "LEFT", "LIKE", "LIMIT", "MATCH", "MATERIALIZED", "NATURAL", "NO", "NOT",
		"NOTHING", "NOTNULL", "NULL", "NULLS", "OF", "OFFSET", "ON", "OR", "ORDER", "OTHERS",
		"OUTER", "OVER", "PARTITION", "PLAN", "PRAGMA", "PRECEDING", "PRIMARY", "QUERY", "RAISE",
		"RANGE", "RECURSIVE", "REFERENCES", "REGEXP", "REINDEX", "RELEASE", "RENAME", "REPLACE",
		"RESTRICT", "RETURNING", "RIGHT", "ROLLBACK", "ROW", "ROWS", "SAVEPOINT", "SELECT", "SET",
		"TABLE", "TEMP", "TEMPORARY", "THEN", "TIES", "TO", "TRANSACTION", "TRIGGER", "UNBOUNDED",
		"UNION", "UNIQUE", "UPDATE", "USING", "VACUUM", "VALUES", "VIEW", "VIRTUAL", "WHEN",
		"WHERE", "WINDOW", "WITH", "WITHOUT",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
