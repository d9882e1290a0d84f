package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/malbeclabs/assetbot/pkg/store"
)

// RowText flattens a row to "column: value | column: value". Column names are
// lower-cased with spaces replaced by underscores, NULL renders as an empty
// value and binary columns are skipped.
func RowText(columns []string, row store.Row) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		v := row[col]
		if _, ok := v.([]byte); ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", normalizeColumn(col), formatValue(v)))
	}
	return strings.Join(parts, " | ")
}

func normalizeColumn(col string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

// Executor runs a read-only statement.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) (*store.ResultSet, error)
}

// LoadRowTexts renders every row of table, in rowid order.
func LoadRowTexts(ctx context.Context, db Executor, table string) ([]string, error) {
	rs, err := db.Execute(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", schema.QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to load rows from %s: %w", table, err)
	}
	texts := make([]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		texts = append(texts, RowText(rs.Columns, row))
	}
	return texts, nil
}
