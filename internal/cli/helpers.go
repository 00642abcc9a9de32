package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faizmokh/hadir/internal/ledger"
)

func formatRecord(rec ledger.Record) string {
	builder := strings.Builder{}
	builder.Grow(32 + len(rec.Name))

	builder.WriteString("[")
	builder.WriteString(strings.ToLower(rec.Status.String()))
	builder.WriteString("] ")
	builder.WriteString(rec.Date())
	builder.WriteString(" ")
	builder.WriteString(rec.Time())
	builder.WriteString(" ")
	builder.WriteString(rec.Name)

	return builder.String()
}

func printMissingSheet(cmd *cobra.Command, lecture string) {
	fmt.Fprintf(cmd.OutOrStdout(), "No attendance recorded for %s\n", lecture)
}

func printSheet(cmd *cobra.Command, sheet ledger.Sheet, records []ledger.Record) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", sheet.Name)
	if len(records) == 0 {
		fmt.Fprintln(out, "(no records)")
		return nil
	}

	present := 0
	for i, rec := range records {
		if rec.Status == ledger.StatusPresent {
			present++
		}
		fmt.Fprintf(out, "%d. %s\n", i+1, formatRecord(rec))
	}
	fmt.Fprintf(out, "%d recorded, %d present\n", len(records), present)
	return nil
}
