// Package schema introspects the column layout of a SQLite table and renders
// it for SQL generation prompts.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var ErrSchemaNotFound = errors.New("schema not found")

// Column is a single declared column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Descriptor is the ordered column layout of a table, in declaration order.
type Descriptor struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

func (d *Descriptor) Names() []string {
	names := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		names = append(names, c.Name)
	}
	return names
}

// Type returns the declared type of the named column.
func (d *Descriptor) Type(name string) (string, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c.Type, true
		}
	}
	return "", false
}

func (d *Descriptor) Has(name string) bool {
	_, ok := d.Type(name)
	return ok
}

// ColumnList renders the column names joined by ", ", each quoted per rule.
func (d *Descriptor) ColumnList(rule QuoteRule) string {
	quoted := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		quoted = append(quoted, rule.Quote(c.Name))
	}
	return strings.Join(quoted, ", ")
}

// ExampleQuery renders a query template used as a prompt exemplar. It is never executed.
func (d *Descriptor) ExampleQuery(rule QuoteRule) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE [CONDITION] LIMIT 10;", d.ColumnList(rule), QuoteIdent(d.Table))
}

// Clone returns a deep copy so callers never share a descriptor.
func (d *Descriptor) Clone() *Descriptor {
	cols := make([]Column, len(d.Columns))
	copy(cols, d.Columns)
	return &Descriptor{Table: d.Table, Columns: cols}
}

// Describer returns the schema of a table.
type Describer interface {
	Describe(ctx context.Context, table string) (*Descriptor, error)
}

// DB is the subset of *sql.DB and *sql.Conn the introspector needs.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Introspector reads table metadata via pragma_table_info.
type Introspector struct {
	db DB
}

func NewIntrospector(db DB) *Introspector {
	return &Introspector{db: db}
}

// Describe returns the columns of table in declaration order. It fails with
// ErrSchemaNotFound when the table does not exist.
func (i *Introspector) Describe(ctx context.Context, table string) (*Descriptor, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read table info for %q: %w", table, err)
	}
	defer rows.Close()

	desc := &Descriptor{Table: table}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		desc.Columns = append(desc.Columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate table info: %w", err)
	}
	if len(desc.Columns) == 0 {
		return nil, fmt.Errorf("%w: table %q", ErrSchemaNotFound, table)
	}
	return desc, nil
}
