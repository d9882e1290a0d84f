package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/malbeclabs/assetbot/internal/app"
	"github.com/malbeclabs/assetbot/pkg/upload"
	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <EQ-XXXX_DD_MM_YYYY.pdf|jpg|jpeg|png>",
		Short: "Attach a document to its equipment row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			// Reject bad names before opening anything.
			if _, err := upload.ParseFilename(filepath.Base(args[0])); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := e.open(ctx, app.Options{Writer: true})
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Uploader.Store(ctx, upload.File{Name: args[0], Data: data})
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "File '%s' stored and linked to %s.\n", rec.FileName, rec.EquipmentID)
			return nil
		},
	}
}
