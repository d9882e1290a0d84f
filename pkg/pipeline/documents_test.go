package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/malbeclabs/assetbot/pkg/store"
	"github.com/stretchr/testify/require"
)

func TestPipeline_DisplayType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"image/png":        DisplayImage,
		"IMAGE/JPEG":       DisplayImage,
		"application/pdf":  DisplayPDF,
		"application/zip":  DisplayOther,
		"":                 DisplayOther,
		" application/pdf": DisplayPDF,
	}
	for in, want := range tests {
		require.Equal(t, want, DisplayType(in), in)
	}
}

func TestPipeline_FindDocuments(t *testing.T) {
	t.Parallel()

	t.Run("returns rows with file data", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, assetsCSV)
		_, err := env.writer.AttachDocument(context.Background(), "filled_asset_data", "Equipment ID", store.Attachment{
			EquipmentID: "EQ-3115",
			FileName:    "EQ-3115_20_04_2025.pdf",
			MIMEType:    "application/pdf",
			Data:        []byte("%PDF-1.7"),
			UploadedAt:  time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		client := &fakeLLM{sqlFn: func(user string) (string, error) {
			require.Contains(t, user, "uploaded_file_data IS NOT NULL")
			require.Contains(t, user, `"Equipment ID"`)
			return "```sql\nSELECT \"Equipment ID\", uploaded_file_name, uploaded_file_type, uploaded_file_data FROM \"filled_asset_data\" WHERE \"Equipment ID\" = 'EQ-3115' AND uploaded_file_data IS NOT NULL;\n```", nil
		}}
		p := env.pipeline(t, client, nil)

		res, err := p.FindDocuments(context.Background(), "Show me the manual for EQ-3115")
		require.NoError(t, err)
		require.Equal(t, []Document{{
			EquipmentID: "EQ-3115",
			FileName:    "EQ-3115_20_04_2025.pdf",
			MIMEType:    "application/pdf",
			DisplayType: DisplayPDF,
			Data:        []byte("%PDF-1.7"),
		}}, res.Documents)
		require.Contains(t, res.SQL, "uploaded_file_data IS NOT NULL")
		require.Equal(t, 1, res.Attempts)
	})

	t.Run("rows without data are skipped", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, assetsCSV)
		client := &fakeLLM{sqlFn: fenced(`SELECT uploaded_file_name, uploaded_file_type, uploaded_file_data FROM "filled_asset_data"`)}
		p := env.pipeline(t, client, nil)

		res, err := p.FindDocuments(context.Background(), "any pictures?")
		require.NoError(t, err)
		require.Empty(t, res.Documents)
	})

	t.Run("table without document columns", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, assetsCSV)
		_, err := env.writer.Exec(context.Background(), `CREATE TABLE bare ("Equipment ID" TEXT)`)
		require.NoError(t, err)
		client := &fakeLLM{sqlFn: fenced("SELECT 1")}
		p := env.pipeline(t, client, func(cfg *Config) { cfg.Profile.Table = "bare" })

		_, err = p.FindDocuments(context.Background(), "manual for EQ-1")
		require.Equal(t, KindSchemaNotFound, KindOf(err))
		require.Empty(t, client.Calls())
	})
}
