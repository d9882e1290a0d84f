package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/malbeclabs/assetbot/pkg/store"
	"github.com/stretchr/testify/require"
)

const assetsCSV = "Equipment ID,Location,Owner\nEQ-3115,Warehouse 4,Facilities\nEQ-2001,Plant 1,Operations\n"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func loadedDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "assets.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(assetsCSV), 0o600))
	db := filepath.Join(dir, "assets.db")

	out, err := run(t, "--db", db, "load", csvPath)
	require.NoError(t, err)
	require.Equal(t, "Loaded 2 rows into filled_asset_data\n", out)
	return db
}

func TestCLI_Schema(t *testing.T) {
	t.Parallel()

	db := loadedDB(t)
	out, err := run(t, "--db", db, "schema")
	require.NoError(t, err)
	require.Contains(t, out, "Table: filled_asset_data")
	require.Contains(t, out, "Equipment ID")
	require.Contains(t, out, "uploaded_file_data")
	require.Contains(t, out, `Example: SELECT "Equipment ID", Location, Owner`)
}

func TestCLI_Query(t *testing.T) {
	t.Parallel()

	db := loadedDB(t)

	out, err := run(t, "--db", db, "query", `SELECT Location FROM filled_asset_data WHERE "Equipment ID" = 'EQ-3115';`)
	require.NoError(t, err)
	require.Contains(t, out, "Warehouse 4")
	require.Contains(t, out, "(1 rows)")

	_, err = run(t, "--db", db, "query", "DELETE FROM filled_asset_data")
	require.Error(t, err)

	out, err = run(t, "--db", db, "query", "SELECT COUNT(*) AS n FROM filled_asset_data")
	require.NoError(t, err)
	require.Contains(t, out, "2")
}

func TestCLI_Upload(t *testing.T) {
	t.Parallel()

	db := loadedDB(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "EQ-3115_20_04_2025.pdf")
	require.NoError(t, os.WriteFile(good, []byte("%PDF-1.7"), 0o600))
	out, err := run(t, "--db", db, "upload", good)
	require.NoError(t, err)
	require.Equal(t, "File 'EQ-3115_20_04_2025.pdf' stored and linked to EQ-3115.\n", out)

	bad := filepath.Join(dir, "equipment1.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o600))
	_, err = run(t, "--db", db, "upload", bad)
	require.ErrorContains(t, err, "invalid file name")

	out, err = run(t, "--db", db, "query", "SELECT uploaded_file_name, uploaded_file_type FROM filled_asset_data WHERE uploaded_file_data IS NOT NULL")
	require.NoError(t, err)
	require.Contains(t, out, "EQ-3115_20_04_2025.pdf")
	require.Contains(t, out, "application/pdf")
	require.Contains(t, out, "(1 rows)")
}

func TestCLI_Search(t *testing.T) {
	t.Parallel()

	db := loadedDB(t)
	out, err := run(t, "--db", db, "search", "--top-k", "5", "EQ-3115 warehouse")
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	var records int
	for _, l := range lines {
		if strings.Contains(l, "equipment_id:") {
			records++
		}
	}
	require.Equal(t, 2, records)
}

func TestCLI_CellText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "NULL", cellText(nil))
	require.Equal(t, "<binary 3 bytes>", cellText([]byte{1, 2, 3}))
	require.Equal(t, "1.5", cellText(1.5))
	require.Equal(t, "42", cellText(int64(42)))
}

func TestCLI_RenderResultSet(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderResultSet(&buf, &store.ResultSet{
		Columns: []string{"Equipment ID", "Location"},
		Rows:    []store.Row{{"Equipment ID": "EQ-3115", "Location": "Warehouse 4"}},
	})
	require.Contains(t, buf.String(), "Equipment ID")
	require.Contains(t, buf.String(), "Warehouse 4")
	require.True(t, strings.HasSuffix(buf.String(), "(1 rows)\n"))
}
