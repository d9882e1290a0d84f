package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/malbeclabs/assetbot/internal/app"
	"github.com/malbeclabs/assetbot/internal/logger"
	"github.com/malbeclabs/assetbot/pkg/config"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	rootCmd := NewRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

// NewRootCmd builds the command tree. Results go to out; logs go to errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "assetbot",
		Short:         "Ask questions about equipment assets in plain language.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "set debug logging level")
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML profile")
	rootCmd.PersistentFlags().String("db", "", "path to the SQLite database (overrides the profile)")

	rootCmd.AddCommand(
		newAskCmd(),
		newSchemaCmd(),
		newQueryCmd(),
		newSearchCmd(),
		newLoadCmd(),
		newUploadCmd(),
	)
	return rootCmd
}

// env is what every subcommand starts from.
type env struct {
	log *slog.Logger
	cfg *config.Config
	out io.Writer
}

func newEnv(cmd *cobra.Command) (*env, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	db, err := cmd.Flags().GetString("db")
	if err != nil {
		return nil, fmt.Errorf("failed to get db flag: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if db != "" {
		cfg.Database.Path = db
	}
	return &env{
		log: logger.New(cmd.ErrOrStderr(), verbose),
		cfg: cfg,
		out: cmd.OutOrStdout(),
	}, nil
}

func (e *env) open(ctx context.Context, opts app.Options) (*app.App, error) {
	return app.Open(ctx, e.log, e.cfg, opts)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}
