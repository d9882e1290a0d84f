package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/malbeclabs/assetbot/internal/app"
	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question about the asset table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			showSQL, err := cmd.Flags().GetBool("show-sql")
			if err != nil {
				return fmt.Errorf("failed to get show-sql flag: %w", err)
			}
			mode, err := cmd.Flags().GetString("mode")
			if err != nil {
				return fmt.Errorf("failed to get mode flag: %w", err)
			}
			docs, err := cmd.Flags().GetBool("documents")
			if err != nil {
				return fmt.Errorf("failed to get documents flag: %w", err)
			}
			if mode != "" {
				e.cfg.Pipeline.Mode = mode
				if m, err := pipeline.ParseMode(mode); err == nil && m == pipeline.ModeRetrieval {
					e.cfg.Retrieval.Enabled = true
				}
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := e.open(ctx, app.Options{Pipeline: true})
			if err != nil {
				return err
			}
			defer a.Close()

			question := strings.Join(args, " ")
			if docs {
				res, err := a.Pipeline.FindDocuments(ctx, question)
				if err != nil {
					return askError(err)
				}
				if len(res.Documents) == 0 {
					fmt.Fprintln(e.out, "No matching documents found.")
					return nil
				}
				table := newTable(e.out, []string{"Equipment ID", "File", "Type", "Display", "Size"})
				for _, d := range res.Documents {
					table.Append([]string{d.EquipmentID, d.FileName, d.MIMEType, d.DisplayType, fmt.Sprintf("%d", len(d.Data))})
				}
				table.Render()
				return nil
			}

			res, err := a.Pipeline.Ask(ctx, question)
			if err != nil {
				return askError(err)
			}
			if showSQL {
				if res.SQL != "" {
					fmt.Fprintf(e.out, "SQL: %s\n", res.SQL)
				}
				if res.ResultSet != nil {
					renderResultSet(e.out, res.ResultSet)
				}
				for i, c := range res.Contexts {
					fmt.Fprintf(e.out, "context %d: %s\n", i+1, c)
				}
				if res.FellBack {
					fmt.Fprintln(e.out, "(answered from retrieval after the SQL path failed)")
				}
			}
			fmt.Fprintln(e.out, res.Answer)
			return nil
		},
	}
	cmd.Flags().Bool("show-sql", false, "print the generated SQL and the rows it returned")
	cmd.Flags().String("mode", "", "answer mode: sql or retrieval (overrides the profile)")
	cmd.Flags().Bool("documents", false, "list stored documents matching the question instead of answering")
	return cmd
}

// askError pairs the friendly message with the underlying cause.
func askError(err error) error {
	if errors.Is(err, pipeline.ErrEmptyQuestion) {
		return errors.New("please enter a question")
	}
	return fmt.Errorf("%s\n  cause: %w", pipeline.FriendlyMessage(err), err)
}
