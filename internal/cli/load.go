package cli

import (
	"fmt"

	"github.com/malbeclabs/assetbot/internal/app"
	"github.com/spf13/cobra"
)

func newLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <file.csv|file.xlsx>",
		Short: "Replace the asset table with the contents of a CSV or Excel file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			table, err := cmd.Flags().GetString("table")
			if err != nil {
				return fmt.Errorf("failed to get table flag: %w", err)
			}
			if table == "" {
				table = e.cfg.Database.Table
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := e.open(ctx, app.Options{Writer: true})
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Writer.LoadFile(ctx, args[0], table)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Loaded %d rows into %s\n", n, table)
			return nil
		},
	}
	cmd.Flags().String("table", "", "destination table (default from the profile)")
	return cmd
}
