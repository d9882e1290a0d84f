package schema

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testDB(t *testing.T, ddl ...string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func TestSchema_Introspector_Describe(t *testing.T) {
	t.Parallel()

	t.Run("columns in declaration order", func(t *testing.T) {
		t.Parallel()

		db := testDB(t, `CREATE TABLE "filled_asset_data" (
			"Equipment ID" TEXT,
			"Location" TEXT,
			"Install Date" TEXT,
			"Under-Warranty" INTEGER,
			"Cost" REAL,
			"uploaded_file_data" BLOB
		)`)

		desc, err := NewIntrospector(db).Describe(context.Background(), "filled_asset_data")
		require.NoError(t, err)

		want := []Column{
			{Name: "Equipment ID", Type: "TEXT"},
			{Name: "Location", Type: "TEXT"},
			{Name: "Install Date", Type: "TEXT"},
			{Name: "Under-Warranty", Type: "INTEGER"},
			{Name: "Cost", Type: "REAL"},
			{Name: "uploaded_file_data", Type: "BLOB"},
		}
		if diff := cmp.Diff(want, desc.Columns); diff != "" {
			t.Fatalf("columns mismatch (-want +got):\n%s", diff)
		}
		require.Equal(t, "filled_asset_data", desc.Table)
		require.Equal(t, []string{"Equipment ID", "Location", "Install Date", "Under-Warranty", "Cost", "uploaded_file_data"}, desc.Names())

		typ, ok := desc.Type("Cost")
		require.True(t, ok)
		require.Equal(t, "REAL", typ)
		require.False(t, desc.Has("Owner"))
	})

	t.Run("missing table", func(t *testing.T) {
		t.Parallel()

		db := testDB(t)
		_, err := NewIntrospector(db).Describe(context.Background(), "nope")
		require.ErrorIs(t, err, ErrSchemaNotFound)
	})
}

func TestSchema_Descriptor_ExampleQuery(t *testing.T) {
	t.Parallel()

	desc := &Descriptor{
		Table: "filled_asset_data",
		Columns: []Column{
			{Name: "Equipment ID", Type: "TEXT"},
			{Name: "Location", Type: "TEXT"},
			{Name: "Order", Type: "TEXT"},
		},
	}

	require.Equal(t,
		`SELECT "Equipment ID", Location, Order FROM "filled_asset_data" WHERE [CONDITION] LIMIT 10;`,
		desc.ExampleQuery(QuoteSpaces))
	require.Equal(t,
		`SELECT "Equipment ID", Location, "Order" FROM "filled_asset_data" WHERE [CONDITION] LIMIT 10;`,
		desc.ExampleQuery(QuoteSafe))
	require.Equal(t,
		`SELECT "Equipment ID", "Location", "Order" FROM "filled_asset_data" WHERE [CONDITION] LIMIT 10;`,
		desc.ExampleQuery(QuoteAlways))
}

func TestSchema_QuoteRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule QuoteRule
		in   string
		want string
	}{
		{"spaces plain", QuoteSpaces, "Location", "Location"},
		{"spaces with space", QuoteSpaces, "Equipment ID", `"Equipment ID"`},
		{"spaces with hyphen", QuoteSpaces, "Under-Warranty", `"Under-Warranty"`},
		{"spaces ignores reserved", QuoteSpaces, "group", "group"},
		{"safe reserved", QuoteSafe, "group", `"group"`},
		{"safe dot", QuoteSafe, "cost.usd", `"cost.usd"`},
		{"safe leading digit", QuoteSafe, "1st", `"1st"`},
		{"safe plain", QuoteSafe, "owner_name2", "owner_name2"},
		{"always", QuoteAlways, "Location", `"Location"`},
		{"embedded quote", QuoteAlways, `a"b`, `"a""b"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.rule.Quote(tt.in))
		})
	}
}

func TestSchema_ParseQuoteRule(t *testing.T) {
	t.Parallel()

	r, err := ParseQuoteRule("")
	require.NoError(t, err)
	require.Equal(t, QuoteSafe, r)

	r, err = ParseQuoteRule(" Spaces ")
	require.NoError(t, err)
	require.Equal(t, QuoteSpaces, r)

	_, err = ParseQuoteRule("sometimes")
	require.Error(t, err)
}

type countingDescriber struct {
	calls atomic.Int32
	err   error
}

func (c *countingDescriber) Describe(_ context.Context, table string) (*Descriptor, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &Descriptor{Table: table, Columns: []Column{{Name: "Location", Type: "TEXT"}}}, nil
}

func TestSchema_Cached(t *testing.T) {
	t.Parallel()

	t.Run("caches within ttl and returns copies", func(t *testing.T) {
		t.Parallel()

		inner := &countingDescriber{}
		c := NewCached(inner, time.Minute)

		first, err := c.Describe(context.Background(), "t")
		require.NoError(t, err)
		first.Columns[0].Name = "mutated"

		second, err := c.Describe(context.Background(), "t")
		require.NoError(t, err)
		require.Equal(t, "Location", second.Columns[0].Name)
		require.Equal(t, int32(1), inner.calls.Load())
	})

	t.Run("concurrent callers share the cache", func(t *testing.T) {
		t.Parallel()

		inner := &countingDescriber{}
		c := NewCached(inner, time.Minute)
		_, err := c.Describe(context.Background(), "t")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				desc, err := c.Describe(context.Background(), "t")
				if err == nil {
					desc.Columns[0].Name = "mutated"
				}
			}()
		}
		wg.Wait()

		desc, err := c.Describe(context.Background(), "t")
		require.NoError(t, err)
		require.Equal(t, "Location", desc.Columns[0].Name)
		require.Equal(t, int32(1), inner.calls.Load())
	})

	t.Run("zero ttl disables caching", func(t *testing.T) {
		t.Parallel()

		inner := &countingDescriber{}
		c := NewCached(inner, 0)
		for range 3 {
			_, err := c.Describe(context.Background(), "t")
			require.NoError(t, err)
		}
		require.Equal(t, int32(3), inner.calls.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		t.Parallel()

		inner := &countingDescriber{err: errors.New("boom")}
		c := NewCached(inner, time.Minute)
		_, err := c.Describe(context.Background(), "t")
		require.Error(t, err)
		_, err = c.Describe(context.Background(), "t")
		require.Error(t, err)
		require.Equal(t, int32(2), inner.calls.Load())
	})
}
