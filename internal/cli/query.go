package cli

import (
	"strings"

	"github.com/malbeclabs/assetbot/internal/app"
	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <select statement>",
		Short: "Run a read-only SELECT against the asset database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			sql, err := pipeline.ParseSQL(strings.Join(args, " "))
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

			rs, err := a.Store.Execute(ctx, sql.Text, sql.Args...)
			if err != nil {
				return err
			}
			renderResultSet(e.out, rs)
			return nil
		},
	}
}
