package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/assetbot/pkg/store"
)

var (
	ErrInvalidFilename   = errors.New("invalid file name, expected EQ-XXXX_DD_MM_YYYY.ext with ext one of pdf, jpg, jpeg, png")
	ErrEquipmentNotFound = errors.New("equipment not found")
	ErrEmptyFile         = errors.New("file is empty")
	ErrFileTooLarge      = errors.New("file is too large")
)

var filenameRe = regexp.MustCompile(`^(EQ-\d{4})_(\d{2})_(\d{2})_(\d{4})\.((?i:pdf|jpg|jpeg|png))$`)

// Match is a parsed document file name.
type Match struct {
	EquipmentID string
	Day         int
	Month       int
	Year        int
	Ext         string
}

// Date returns the document date encoded in the name. The name pattern does
// not constrain the calendar, so an impossible date is an error here.
func (m Match) Date() (time.Time, error) {
	d := time.Date(m.Year, time.Month(m.Month), m.Day, 0, 0, 0, 0, time.UTC)
	if d.Day() != m.Day || int(d.Month()) != m.Month || d.Year() != m.Year {
		return time.Time{}, fmt.Errorf("invalid date %02d_%02d_%04d", m.Day, m.Month, m.Year)
	}
	return d, nil
}

// ParseFilename matches name against EQ-####_DD_MM_YYYY.<pdf|jpg|jpeg|png>.
func ParseFilename(name string) (Match, error) {
	g := filenameRe.FindStringSubmatch(name)
	if g == nil {
		return Match{}, fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	day, _ := strconv.Atoi(g[2])
	month, _ := strconv.Atoi(g[3])
	year, _ := strconv.Atoi(g[4])
	return Match{
		EquipmentID: g[1],
		Day:         day,
		Month:       month,
		Year:        year,
		Ext:         strings.ToLower(g[5]),
	}, nil
}

// Writer is the subset of store.Writer used for uploads.
type Writer interface {
	EquipmentExists(ctx context.Context, table, idColumn, id string) (bool, error)
	AttachDocument(ctx context.Context, table, idColumn string, a store.Attachment) (int64, error)
}

type Config struct {
	Logger   *slog.Logger
	Writer   Writer
	Clock    clockwork.Clock
	Table    string
	IDColumn string
	MaxBytes int64
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Writer == nil {
		return errors.New("writer is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Table == "" {
		cfg.Table = "filled_asset_data"
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "Equipment ID"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 32 << 20
	}
	return nil
}

// File is an uploaded document.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Receipt describes a stored upload.
type Receipt struct {
	EquipmentID string    `json:"equipment_id"`
	FileName    string    `json:"file_name"`
	MIMEType    string    `json:"mime_type"`
	Size        int       `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`

	// DocumentDate is the DD_MM_YYYY part of the name as YYYY-MM-DD, empty
	// when those digits are not a calendar date.
	DocumentDate string `json:"document_date,omitempty"`
}

type Uploader struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Uploader{log: cfg.Logger, cfg: cfg}, nil
}

// MaxBytes is the largest accepted file.
func (u *Uploader) MaxBytes() int64 {
	return u.cfg.MaxBytes
}

// Store validates the file name and attaches the file to its equipment row.
// Nothing touches the store until the name has been accepted.
func (u *Uploader) Store(ctx context.Context, f File) (*Receipt, error) {
	name := filepath.Base(f.Name)
	m, err := ParseFilename(name)
	if err != nil {
		u.log.Warn("upload: rejected file name", "name", name)
		return nil, err
	}
	if len(f.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(f.Data)) > u.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", ErrFileTooLarge, len(f.Data), u.cfg.MaxBytes)
	}

	mimeType := f.MIMEType
	if mimeType == "" || mimeType == "application/octet-stream" {
		if t := mime.TypeByExtension("." + m.Ext); t != "" {
			mimeType = t
		}
	}

	exists, err := u.cfg.Writer.EquipmentExists(ctx, u.cfg.Table, u.cfg.IDColumn, m.EquipmentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrEquipmentNotFound, m.EquipmentID)
	}

	now := u.cfg.Clock.Now()
	n, err := u.cfg.Writer.AttachDocument(ctx, u.cfg.Table, u.cfg.IDColumn, store.Attachment{
		EquipmentID: m.EquipmentID,
		FileName:    name,
		MIMEType:    mimeType,
		Data:        f.Data,
		UploadedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("upload: stored document", "equipment", m.EquipmentID, "name", name, "bytes", len(f.Data), "rows", n)
	rec := &Receipt{
		EquipmentID: m.EquipmentID,
		FileName:    name,
		MIMEType:    mimeType,
		Size:        len(f.Data),
		UploadedAt:  now,
	}
	if d, err := m.Date(); err == nil {
		rec.DocumentDate = d.Format(time.DateOnly)
	} else {
		u.log.Debug("upload: name has no calendar date", "name", name, "error", err)
	}
	return rec, nil
}
