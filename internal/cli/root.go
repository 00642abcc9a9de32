package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/faizmokh/hadir/internal/config"
	"github.com/faizmokh/hadir/internal/files"
)

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// app carries what every subcommand needs once the root has loaded configuration.
type app struct {
	ctx     context.Context
	manager *files.Manager
	cfg     config.Config
	logger  *slog.Logger
}

// NewRootCommand creates the top-level Cobra command hosting the session subcommands.
func NewRootCommand(ctx context.Context, manager *files.Manager) *cobra.Command {
	a := &app{ctx: ctx, manager: manager}

	cmd := &cobra.Command{
		Use:   "hadir",
		Short: "Take lecture attendance by recognising enrolled faces.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			a.cfg = cfg
			a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log.Level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newStartCommand(a),
		newWatchCommand(a),
		newSheetCommand(a),
		newLecturesCommand(a),
		newEnrollCommand(a),
		newVersionCommand(),
	)

	return cmd
}

// ExecuteCommand is a thin wrapper that executes the Cobra root command.
func ExecuteCommand(ctx context.Context) error {
	manager, err := files.NewManager("")
	if err != nil {
		return err
	}
	cmd := NewRootCommand(ctx, manager)
	return cmd.Execute()
}

// Main is a helper used by cmd/hadir/main.go to keep wiring contained in one package.
func Main(ctx context.Context) {
	if err := ExecuteCommand(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
