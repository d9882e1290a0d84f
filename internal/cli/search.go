package cli

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/assetbot/internal/app"
	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "List the asset records closest to a question by embedding distance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			topK, err := cmd.Flags().GetInt("top-k")
			if err != nil {
				return fmt.Errorf("failed to get top-k flag: %w", err)
			}
			if topK <= 0 {
				topK = e.cfg.Pipeline.TopK
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := e.open(ctx, app.Options{Index: true})
			if err != nil {
				return err
			}
			defer a.Close()

			hits, err := a.Index.RetrieveSimilar(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			table := newTable(e.out, []string{"Rank", "Row", "Distance", "Record"})
			for i, h := range hits {
				table.Append([]string{
					fmt.Sprintf("%d", i+1),
					fmt.Sprintf("%d", h.Index+1),
					fmt.Sprintf("%.4f", h.Distance),
					h.Text,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("top-k", 0, "number of records to return (default from the profile)")
	return cmd
}
