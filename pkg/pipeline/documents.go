package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/malbeclabs/assetbot/pkg/llm"
	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/malbeclabs/assetbot/pkg/store"
)

// Display types for stored documents.
const (
	DisplayImage = "image"
	DisplayPDF   = "pdf"
	DisplayOther = "other"
)

// Document is a file stored on an equipment row.
type Document struct {
	EquipmentID string `json:"equipment_id,omitempty"`
	FileName    string `json:"file_name"`
	MIMEType    string `json:"mime_type"`
	DisplayType string `json:"display_type"`
	Data        []byte `json:"data"`
}

// DocumentsResult holds the statement that was run and the documents found.
type DocumentsResult struct {
	SQL       string
	Documents []Document
	Attempts  int
}

// DisplayType maps a MIME type to how a front end should render it.
func DisplayType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return DisplayImage
	case mimeType == "application/pdf":
		return DisplayPDF
	default:
		return DisplayOther
	}
}

// identifying columns offered to the model as filters when present.
var documentFilterColumns = []string{"Asset Name", "Serial No", "Part ID"}

// FindDocuments asks the model for a statement selecting the documents that
// match question, runs it and returns every row that carries file data.
func (p *Pipeline) FindDocuments(ctx context.Context, question string) (*DocumentsResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	var sqlText string
	res, attempts, err := p.withRetry(ctx, func(ctx context.Context) (*Result, error) {
		desc, err := p.describe(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range []string{store.ColFileName, store.ColFileType, store.ColFileData} {
			if !desc.Has(c) {
				return nil, newError(KindSchemaNotFound, "find_documents", fmt.Errorf("table %q has no %s column", desc.Table, c))
			}
		}

		userPrompt := render(p.profile.Prompts.Documents, map[string]string{
			"TABLE":          desc.Table,
			"SCHEMA":         schemaBlock(desc, p.profile.QuoteRule),
			"FILTER_COLUMNS": p.filterColumns(desc),
			"QUESTION":       question,
		})
		raw, err := p.complete(ctx, "synthesize_documents_sql", p.profile.Prompts.SQLSystem, userPrompt,
			llm.WithTemperature(0), llm.WithMaxTokens(p.profile.SQLMaxTokens))
		if err != nil {
			return nil, err
		}
		sql, err := ExtractSQL(raw)
		if err != nil {
			return nil, err
		}
		sqlText = sql.Text
		rs, err := p.Execute(ctx, sql)
		if err != nil {
			return nil, err
		}
		return &Result{SQL: sql.Text, ResultSet: rs, Empty: rs.Empty()}, nil
	})
	if err != nil {
		return nil, err
	}

	out := &DocumentsResult{SQL: sqlText, Attempts: attempts}
	for _, row := range res.ResultSet.Rows {
		doc, ok := p.documentFromRow(row)
		if ok {
			out.Documents = append(out.Documents, doc)
		}
	}
	p.log.Info("pipeline: documents found", "count", len(out.Documents), "attempts", attempts)
	return out, nil
}

func (p *Pipeline) filterColumns(desc *schema.Descriptor) string {
	cols := []string{p.profile.QuoteRule.Quote(p.profile.IDColumn)}
	for _, c := range documentFilterColumns {
		if desc.Has(c) {
			cols = append(cols, p.profile.QuoteRule.Quote(c))
		}
	}
	return strings.Join(cols, ", ")
}

func (p *Pipeline) documentFromRow(row store.Row) (Document, bool) {
	var data []byte
	switch v := row[store.ColFileData].(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	}
	if len(data) == 0 {
		return Document{}, false
	}
	doc := Document{
		FileName: stringValue(row[store.ColFileName]),
		MIMEType: stringValue(row[store.ColFileType]),
		Data:     data,
	}
	if id, ok := row[p.profile.IDColumn]; ok && id != nil {
		doc.EquipmentID = stringValue(id)
	}
	doc.DisplayType = DisplayType(doc.MIMEType)
	return doc, true
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
