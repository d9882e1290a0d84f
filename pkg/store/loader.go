package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Sheet is a header row plus data rows, as read from a spreadsheet.
type Sheet struct {
	Header []string
	Rows   [][]string
}

// ReadSheet reads a .csv or .xlsx file. For workbooks only the first sheet is read.
func ReadSheet(path string) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx", ".xlsm":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func ReadCSV(r io.Reader) (*Sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return newSheet(records)
}

func readXLSX(path string) (*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return newSheet(rows)
}

func newSheet(records [][]string) (*Sheet, error) {
	if len(records) == 0 {
		return nil, errors.New("file has no header row")
	}
	header := make([]string, len(records[0]))
	// SQLite column names are case-insensitive.
	taken := make(map[string]bool, len(header))
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		name := h
		for n := 1; taken[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", h, n)
		}
		taken[strings.ToLower(name)] = true
		header[i] = name
	}
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]string, len(header))
		copy(row, rec)
		rows = append(rows, row)
	}
	return &Sheet{Header: header, Rows: rows}, nil
}

// InferTypes picks INTEGER, REAL or TEXT per column from its non-empty values.
func (s *Sheet) InferTypes() []string {
	types := make([]string, len(s.Header))
	for i := range s.Header {
		isInt, isReal, nonEmpty := true, true, false
		for _, row := range s.Rows {
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			nonEmpty = true
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isReal = false
			}
		}
		switch {
		case !nonEmpty:
			types[i] = "TEXT"
		case isInt:
			types[i] = "INTEGER"
		case isReal:
			types[i] = "REAL"
		default:
			types[i] = "TEXT"
		}
	}
	return types
}

// LoadFile replaces table with the content of a .csv or .xlsx file and adds
// the document columns. It returns the number of rows inserted.
func (w *Writer) LoadFile(ctx context.Context, path, table string) (int, error) {
	sheet, err := ReadSheet(path)
	if err != nil {
		return 0, err
	}
	return w.LoadSheet(ctx, sheet, table)
}

func (w *Writer) LoadSheet(ctx context.Context, sheet *Sheet, table string) (int, error) {
	types := sheet.InferTypes()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+schema.QuoteIdent(table)); err != nil {
		return 0, fmt.Errorf("failed to drop table: %w", err)
	}

	defs := make([]string, len(sheet.Header))
	cols := make([]string, len(sheet.Header))
	marks := make([]string, len(sheet.Header))
	for i, h := range sheet.Header {
		cols[i] = schema.QuoteIdent(h)
		defs[i] = cols[i] + " " + types[i]
		marks[i] = "?"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", schema.QuoteIdent(table), strings.Join(defs, ", "))); err != nil {
		return 0, fmt.Errorf("failed to create table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.QuoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for n, row := range sheet.Rows {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = convertCell(v, types[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to insert row %d: %w", n+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit load: %w", err)
	}
	w.log.Info("store: loaded table", "table", table, "rows", len(sheet.Rows), "columns", len(sheet.Header))

	if err := w.EnsureDocumentColumns(ctx, table); err != nil {
		return 0, err
	}
	return len(sheet.Rows), nil
}

func convertCell(v, typ string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	switch typ {
	case "INTEGER":
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case "REAL":
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return v
}
