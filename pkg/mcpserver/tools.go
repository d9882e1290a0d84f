package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/malbeclabs/assetbot/pkg/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const maxSearchTopK = 50

type AskInput struct {
	Question string `json:"question" jsonschema:"natural language question about the equipment assets"`
}

type AskOutput struct {
	Answer   string     `json:"answer"`
	Mode     string     `json:"mode"`
	SQL      string     `json:"sql,omitempty"`
	Columns  []string   `json:"columns,omitempty"`
	Rows     []QueryRow `json:"rows,omitempty"`
	Contexts []string   `json:"contexts,omitempty"`
	Empty    bool       `json:"empty"`
	FellBack bool       `json:"fell_back"`
	Attempts int        `json:"attempts"`
}

type SchemaInput struct{}

type SchemaColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type SchemaOutput struct {
	Table        string         `json:"table"`
	Columns      []SchemaColumn `json:"columns"`
	ExampleQuery string         `json:"example_query"`
}

type QueryInput struct {
	SQL string `json:"sql" jsonschema:"a single read-only SELECT statement"`
}

type QueryOutput struct {
	Columns []string   `json:"columns"`
	Rows    []QueryRow `json:"rows"`
	Count   int        `json:"count"`
}

type QueryRow map[string]any

type SearchInput struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of records to return, default 3"`
}

type SearchHit struct {
	Index    int     `json:"index"`
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
}

type SearchOutput struct {
	Hits []SearchHit `json:"hits"`
}

func schemas[In, Out any]() (*jsonschema.Schema, *jsonschema.Schema, error) {
	in, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input schema: %w", err)
	}
	out, err := jsonschema.For[Out](nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output schema: %w", err)
	}
	return in, out, nil
}

func RegisterAskTool(log *slog.Logger, server *mcp.Server, p Pipeline) error {
	in, out, err := schemas[AskInput, AskOutput]()
	if err != nil {
		return err
	}
	mcp.AddTool(server, &mcp.Tool{
		Name: "ask",
		Description: `Answer a natural language question about the equipment asset table.
The question is turned into a read-only SQL query, the query is run and the rows are summarized.
The response includes the generated SQL and the rows it returned.`,
		InputSchema:  in,
		OutputSchema: out,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req AskInput) (*mcp.CallToolResult, AskOutput, error) {
		start := time.Now()
		log.Debug("mcp/tool: handling ask", "question", req.Question)
		res, err := handleAsk(ctx, p, req)
		observeTool("ask", start, err)
		return nil, res, err
	})
	return nil
}

func handleAsk(ctx context.Context, p Pipeline, req AskInput) (AskOutput, error) {
	res, err := p.Ask(ctx, req.Question)
	if err != nil {
		return AskOutput{}, toolError(err)
	}
	out := AskOutput{
		Answer:   res.Answer,
		Mode:     string(res.Mode),
		SQL:      res.SQL,
		Contexts: res.Contexts,
		Empty:    res.Empty,
		FellBack: res.FellBack,
		Attempts: res.Attempts,
	}
	if res.ResultSet != nil {
		out.Columns = res.ResultSet.Columns
		out.Rows = queryRows(res.ResultSet)
	}
	return out, nil
}

func RegisterSchemaTool(log *slog.Logger, server *mcp.Server, p Pipeline) error {
	in, out, err := schemas[SchemaInput, SchemaOutput]()
	if err != nil {
		return err
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:         "schema",
		Description:  "Describe the columns of the equipment asset table, with an example query showing how column names must be quoted.",
		InputSchema:  in,
		OutputSchema: out,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ SchemaInput) (*mcp.CallToolResult, SchemaOutput, error) {
		start := time.Now()
		log.Debug("mcp/tool: handling schema")
		res, err := handleSchema(ctx, p)
		observeTool("schema", start, err)
		return nil, res, err
	})
	return nil
}

func handleSchema(ctx context.Context, p Pipeline) (SchemaOutput, error) {
	desc, err := p.Describe(ctx)
	if err != nil {
		return SchemaOutput{}, toolError(err)
	}
	cols := make([]SchemaColumn, 0, len(desc.Columns))
	for _, c := range desc.Columns {
		cols = append(cols, SchemaColumn{Name: c.Name, Type: c.Type})
	}
	return SchemaOutput{
		Table:        desc.Table,
		Columns:      cols,
		ExampleQuery: desc.ExampleQuery(p.Profile().QuoteRule),
	}, nil
}

func RegisterQueryTool(log *slog.Logger, server *mcp.Server, p Pipeline) error {
	in, out, err := schemas[QueryInput, QueryOutput]()
	if err != nil {
		return err
	}
	mcp.AddTool(server, &mcp.Tool{
		Name: "query",
		Description: `Run a single read-only SQLite SELECT statement against the asset database.
Consult the schema tool first and quote column names that contain spaces with double quotes.
Statements other than one SELECT are rejected.`,
		InputSchema:  in,
		OutputSchema: out,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
		start := time.Now()
		log.Debug("mcp/tool: handling query", "sql", req.SQL)
		res, err := handleQuery(ctx, p, req)
		observeTool("query", start, err)
		return nil, res, err
	})
	return nil
}

func handleQuery(ctx context.Context, p Pipeline, req QueryInput) (QueryOutput, error) {
	sql, err := pipeline.ParseSQL(req.SQL)
	if err != nil {
		return QueryOutput{}, err
	}
	rs, err := p.Execute(ctx, sql)
	if err != nil {
		return QueryOutput{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return QueryOutput{
		Columns: rs.Columns,
		Rows:    queryRows(rs),
		Count:   rs.Len(),
	}, nil
}

func RegisterSearchTool(log *slog.Logger, server *mcp.Server, r Retriever) error {
	in, out, err := schemas[SearchInput, SearchOutput]()
	if err != nil {
		return err
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:         "search",
		Description:  "Find the asset records most similar to a question by embedding distance. Useful when a question does not map cleanly to column filters.",
		InputSchema:  in,
		OutputSchema: out,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
		start := time.Now()
		log.Debug("mcp/tool: handling search", "question", req.Question, "top_k", req.TopK)
		res, err := handleSearch(ctx, r, req)
		observeTool("search", start, err)
		return nil, res, err
	})
	return nil
}

func handleSearch(ctx context.Context, r Retriever, req SearchInput) (SearchOutput, error) {
	if strings.TrimSpace(req.Question) == "" {
		return SearchOutput{}, errors.New("question is required")
	}
	k := req.TopK
	if k <= 0 {
		k = 3
	}
	k = min(k, maxSearchTopK)
	hits, err := r.RetrieveSimilar(ctx, req.Question, k)
	if err != nil {
		return SearchOutput{}, fmt.Errorf("failed to search records: %w", err)
	}
	out := SearchOutput{Hits: make([]SearchHit, 0, len(hits))}
	for _, h := range hits {
		out.Hits = append(out.Hits, SearchHit{Index: h.Index, Text: h.Text, Distance: h.Distance})
	}
	return out, nil
}

// toolError keeps the kind visible to the calling agent alongside the cause.
func toolError(err error) error {
	if kind := pipeline.KindOf(err); kind != "" {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return err
}

func queryRows(rs *store.ResultSet) []QueryRow {
	rows := make([]QueryRow, 0, rs.Len())
	for _, row := range rs.Rows {
		r := make(QueryRow, len(rs.Columns))
		for _, col := range rs.Columns {
			v := row[col]
			if b, ok := v.([]byte); ok {
				v = fmt.Sprintf("<binary %d bytes>", len(b))
			}
			r[col] = v
		}
		rows = append(rows, r)
	}
	return rows
}
