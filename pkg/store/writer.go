package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/assetbot/pkg/schema"
)

// Columns holding an uploaded document on an equipment row.
const (
	ColFileName   = "uploaded_file_name"
	ColFileType   = "uploaded_file_type"
	ColFileData   = "uploaded_file_data"
	ColUploadDate = "upload_date"
)

// DocumentColumns lists the document columns with their declared types, in the
// order they are added to a table.
var DocumentColumns = []schema.Column{
	{Name: ColFileName, Type: "TEXT"},
	{Name: ColFileType, Type: "TEXT"},
	{Name: ColFileData, Type: "BLOB"},
	{Name: ColUploadDate, Type: "TEXT"},
}

type WriterConfig struct {
	Logger      *slog.Logger
	Path        string
	BusyTimeout time.Duration
}

func (cfg *WriterConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Path == "" {
		return errors.New("database path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	return nil
}

// Writer is the single read-write connection used for loads and uploads.
type Writer struct {
	log *slog.Logger
	db  *sql.DB
}

// OpenWriter opens (creating if needed) the database for writing.
func OpenWriter(ctx context.Context, cfg WriterConfig) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate writer config: %w", err)
	}
	db, err := sql.Open(driverName, readWriteDSN(cfg.Path, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Path, err)
	}
	return &Writer{log: cfg.Logger, db: db}, nil
}

func (w *Writer) Close() error {
	return w.db.Close()
}

func (w *Writer) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return w.db.ExecContext(ctx, query, args...)
}

// EnsureDocumentColumns adds any missing document column to table.
func (w *Writer) EnsureDocumentColumns(ctx context.Context, table string) error {
	desc, err := schema.NewIntrospector(w.db).Describe(ctx, table)
	if err != nil {
		return err
	}
	for _, c := range DocumentColumns {
		if desc.Has(c.Name) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", schema.QuoteIdent(table), schema.QuoteIdent(c.Name), c.Type)
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add column %s: %w", c.Name, err)
		}
		w.log.Info("store: added document column", "table", table, "column", c.Name)
	}
	return nil
}

// Attachment is a document to store on an equipment row.
type Attachment struct {
	EquipmentID string
	FileName    string
	MIMEType    string
	Data        []byte
	UploadedAt  time.Time
}

// EquipmentExists reports whether a row with id in idColumn exists.
func (w *Writer) EquipmentExists(ctx context.Context, table, idColumn, id string) (bool, error) {
	q := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ? LIMIT 1", schema.QuoteIdent(table), schema.QuoteIdent(idColumn))
	var one int
	err := w.db.QueryRowContext(ctx, q, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", id, err)
	}
	return true, nil
}

// AttachDocument stores the attachment on its equipment row and returns the
// number of rows updated.
func (w *Writer) AttachDocument(ctx context.Context, table, idColumn string, a Attachment) (int64, error) {
	q := fmt.Sprintf("UPDATE %s SET %s = ?, %s = ?, %s = ?, %s = ? WHERE %s = ?",
		schema.QuoteIdent(table),
		schema.QuoteIdent(ColFileName),
		schema.QuoteIdent(ColFileType),
		schema.QuoteIdent(ColFileData),
		schema.QuoteIdent(ColUploadDate),
		schema.QuoteIdent(idColumn),
	)
	res, err := w.db.ExecContext(ctx, q, a.FileName, a.MIMEType, a.Data, a.UploadedAt.Format("2006-01-02T15:04:05.000000"), a.EquipmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to attach document to %s: %w", a.EquipmentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
