package cli

import (
	"fmt"

	"github.com/malbeclabs/assetbot/internal/app"
	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show the columns of the asset table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := e.open(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			desc, err := a.Schema.Describe(ctx, e.cfg.Database.Table)
			if err != nil {
				return err
			}
			rule, err := schema.ParseQuoteRule(e.cfg.Pipeline.QuoteRule)
			if err != nil {
				return err
			}

			fmt.Fprintf(e.out, "Table: %s\n", desc.Table)
			table := newTable(e.out, []string{"#", "Column", "Type"})
			for i, c := range desc.Columns {
				table.Append([]string{fmt.Sprintf("%d", i+1), c.Name, c.Type})
			}
			table.Render()
			fmt.Fprintf(e.out, "Example: %s\n", desc.ExampleQuery(rule))
			return nil
		},
	}
}
