package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faizmokh/hadir/internal/ledger"
)

func newSheetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sheet <lecture>",
		Short: "Show the attendance recorded for a lecture.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lecture := strings.Join(args, " ")

			store, ok, err := openExistingStore(a)
			if err != nil {
				return err
			}
			if !ok {
				printMissingSheet(cmd, lecture)
				return nil
			}
			defer store.Close()

			sheet, err := store.Lookup(lecture)
			if err != nil {
				if errors.Is(err, ledger.ErrSheetNotFound) {
					printMissingSheet(cmd, lecture)
					return nil
				}
				return err
			}

			records, err := store.Rows(a.ctx, sheet)
			if err != nil {
				return err
			}
			return printSheet(cmd, sheet, records)
		},
	}
}

func newLecturesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lectures",
		Short: "List the lectures present in the ledger.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, ok, err := openExistingStore(a)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "(no lectures)")
				return nil
			}
			defer store.Close()

			lectures := store.Lectures()
			if len(lectures) == 0 {
				fmt.Fprintln(out, "(no lectures)")
				return nil
			}
			for _, name := range lectures {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

// openExistingStore opens the ledger only if its file exists, so read-only commands
// never create one.
func openExistingStore(a *app) (*ledger.Store, bool, error) {
	path := a.manager.LedgerPath(a.cfg.Storage.LedgerFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	store, err := ledger.OpenStore(path)
	if err != nil {
		return nil, false, fmt.Errorf("open ledger: %w", err)
	}
	return store, true, nil
}
