package mcpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/malbeclabs/assetbot/internal/logger"
	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/malbeclabs/assetbot/pkg/retrieval"
	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/malbeclabs/assetbot/pkg/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	store  *store.Store
	askFn  func(q string) (*pipeline.Result, error)
	desc   *schema.Descriptor
	descFn func() error
}

func (f *fakePipeline) Ask(_ context.Context, q string) (*pipeline.Result, error) {
	return f.askFn(q)
}

func (f *fakePipeline) Describe(context.Context) (*schema.Descriptor, error) {
	if f.descFn != nil {
		if err := f.descFn(); err != nil {
			return nil, err
		}
	}
	return f.desc, nil
}

func (f *fakePipeline) Execute(ctx context.Context, sql pipeline.SQL) (*store.ResultSet, error) {
	return f.store.Execute(ctx, sql.Text, sql.Args...)
}

func (f *fakePipeline) Profile() pipeline.Profile {
	return pipeline.Profile{QuoteRule: schema.QuoteSafe}
}

type fakeRetriever struct {
	hits []retrieval.Hit
	gotK int
}

func (f *fakeRetriever) RetrieveSimilar(_ context.Context, _ string, k int) ([]retrieval.Hit, error) {
	f.gotK = k
	return f.hits[:min(k, len(f.hits))], nil
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "assets.db")
	w, err := store.OpenWriter(ctx, store.WriterConfig{Logger: logger.Discard(), Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	sheet, err := store.ReadCSV(strings.NewReader("Equipment ID,Location\nEQ-3115,Warehouse 4\nEQ-2001,Plant 1\n"))
	require.NoError(t, err)
	_, err = w.LoadSheet(ctx, sheet, "filled_asset_data")
	require.NoError(t, err)

	s, err := store.Open(ctx, store.Config{Logger: logger.Discard(), Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDescriptor() *schema.Descriptor {
	return &schema.Descriptor{Table: "filled_asset_data", Columns: []schema.Column{
		{Name: "Equipment ID", Type: "TEXT"},
		{Name: "Location", Type: "TEXT"},
	}}
}

func TestMCPServer_Register(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(&mcp.Implementation{Name: "Test Server", Version: "1.0.0"}, nil)
	p := &fakePipeline{}
	require.NoError(t, RegisterAskTool(logger.Discard(), srv, p))
	require.NoError(t, RegisterSchemaTool(logger.Discard(), srv, p))
	require.NoError(t, RegisterQueryTool(logger.Discard(), srv, p))
	require.NoError(t, RegisterSearchTool(logger.Discard(), srv, &fakeRetriever{}))
}

func TestMCPServer_HandleQuery(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{store: testStore(t)}

	t.Run("runs a select", func(t *testing.T) {
		t.Parallel()

		out, err := handleQuery(context.Background(), p, QueryInput{SQL: `SELECT "Equipment ID", Location FROM filled_asset_data ORDER BY "Equipment ID";`})
		require.NoError(t, err)
		require.Equal(t, []string{"Equipment ID", "Location"}, out.Columns)
		require.Equal(t, 2, out.Count)
		require.Equal(t, QueryRow{"Equipment ID": "EQ-2001", "Location": "Plant 1"}, out.Rows[0])
	})

	t.Run("binary values are summarized", func(t *testing.T) {
		t.Parallel()

		out, err := handleQuery(context.Background(), p, QueryInput{SQL: `SELECT x'00010203' AS blob`})
		require.NoError(t, err)
		require.Equal(t, "<binary 4 bytes>", out.Rows[0]["blob"])
	})

	t.Run("rejects writes", func(t *testing.T) {
		t.Parallel()

		_, err := handleQuery(context.Background(), p, QueryInput{SQL: `DELETE FROM filled_asset_data`})
		require.Equal(t, pipeline.KindInvalidSQL, pipeline.KindOf(err))
	})

	t.Run("engine error", func(t *testing.T) {
		t.Parallel()

		_, err := handleQuery(context.Background(), p, QueryInput{SQL: `SELECT Colour FROM filled_asset_data`})
		require.ErrorContains(t, err, "failed to execute query")
	})
}

func TestMCPServer_HandleSchema(t *testing.T) {
	t.Parallel()

	out, err := handleSchema(context.Background(), &fakePipeline{desc: testDescriptor()})
	require.NoError(t, err)
	require.Equal(t, "filled_asset_data", out.Table)
	require.Equal(t, []SchemaColumn{{Name: "Equipment ID", Type: "TEXT"}, {Name: "Location", Type: "TEXT"}}, out.Columns)
	require.Contains(t, out.ExampleQuery, `"Equipment ID"`)

	_, err = handleSchema(context.Background(), &fakePipeline{descFn: func() error {
		return &pipeline.Error{Kind: pipeline.KindSchemaNotFound, Op: "describe_table", Err: schema.ErrSchemaNotFound}
	}})
	require.ErrorContains(t, err, "SchemaNotFound")
	require.ErrorIs(t, err, schema.ErrSchemaNotFound)
}

func TestMCPServer_HandleAsk(t *testing.T) {
	t.Parallel()

	rs := &store.ResultSet{
		SQL:     "SELECT Location FROM filled_asset_data",
		Columns: []string{"Location"},
		Rows:    []store.Row{{"Location": "Warehouse 4"}},
	}
	p := &fakePipeline{askFn: func(q string) (*pipeline.Result, error) {
		if q == "fail" {
			return nil, &pipeline.Error{Kind: pipeline.KindNoSQLFound, Op: "extract_sql", Err: errors.New("no SQL")}
		}
		return &pipeline.Result{Answer: "Warehouse 4", Mode: pipeline.ModeSQL, SQL: rs.SQL, ResultSet: rs, Attempts: 1}, nil
	}}

	out, err := handleAsk(context.Background(), p, AskInput{Question: "Where is EQ-3115?"})
	require.NoError(t, err)
	require.Equal(t, "Warehouse 4", out.Answer)
	require.Equal(t, "sql", out.Mode)
	require.Equal(t, []QueryRow{{"Location": "Warehouse 4"}}, out.Rows)

	_, err = handleAsk(context.Background(), p, AskInput{Question: "fail"})
	require.ErrorContains(t, err, "NoSqlFound")
}

func TestMCPServer_HandleSearch(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{hits: []retrieval.Hit{
		{Index: 0, Text: "equipment_id: EQ-3115", Distance: 0.1},
		{Index: 1, Text: "equipment_id: EQ-2001", Distance: 0.4},
		{Index: 2, Text: "equipment_id: EQ-1000", Distance: 0.9},
		{Index: 3, Text: "equipment_id: EQ-0001", Distance: 1.2},
	}}

	out, err := handleSearch(context.Background(), r, SearchInput{Question: "EQ-3115"})
	require.NoError(t, err)
	require.Equal(t, 3, r.gotK)
	require.Len(t, out.Hits, 3)
	require.Equal(t, "equipment_id: EQ-3115", out.Hits[0].Text)

	_, err = handleSearch(context.Background(), r, SearchInput{Question: "EQ-3115", TopK: 1000})
	require.NoError(t, err)
	require.Equal(t, maxSearchTopK, r.gotK)

	_, err = handleSearch(context.Background(), r, SearchInput{Question: "  "})
	require.Error(t, err)
}

func TestMCPServer_Auth(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	s, err := New(Config{
		Logger:        logger.Discard(),
		Listener:      listener,
		Pipeline:      &fakePipeline{desc: testDescriptor()},
		AllowedTokens: []string{"secret"},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	tests := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Basic secret", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusUnauthorized},
		{"Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/", strings.NewReader("{}"))
		require.NoError(t, err)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, tt.want, resp.StatusCode, tt.header)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/", strings.NewReader("{}"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.NotEqual(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMCPServer_Config_Validate(t *testing.T) {
	t.Parallel()

	require.Error(t, (&Config{}).Validate())
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	cfg := Config{Logger: logger.Discard(), Listener: listener, Pipeline: &fakePipeline{}}
	require.NoError(t, cfg.Validate())
	require.Equal(t, "dev", cfg.Version)
}
