// Package statusview renders a Supervisor's deployment list as the
// aligned text table the CLI's status command prints (supplemented from
// original_source/src/StrateQueue/cli/cli.py's status output, which the
// distilled spec dropped). No third-party table-rendering library
// appears in this module's dependency tree, so this uses text/tabwriter
// (stdlib) rather than inventing a dependency.
package statusview

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rxtech-lab/argo-trading/internal/types"
)

// Write renders records as an aligned table to w: one row per
// strategy, columns ID, NAME, ENGINE, SYMBOL, MODE, STATUS, ALLOCATION,
// LAST SIGNAL.
func Write(w io.Writer, records []types.StrategyRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tNAME\tENGINE\tSYMBOL\tMODE\tSTATUS\tALLOCATION\tLAST SIGNAL")

	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Name, rec.Engine, symbolOf(rec), rec.Mode, statusOf(rec), allocationOf(rec), lastSignalOf(rec))
	}

	return tw.Flush()
}

func symbolOf(rec types.StrategyRecord) string {
	if len(rec.Symbols) == 0 {
		return "-"
	}

	if len(rec.Symbols) == 1 {
		return rec.Symbols[0]
	}

	return fmt.Sprintf("%s+%d", rec.Symbols[0], len(rec.Symbols)-1)
}

func statusOf(rec types.StrategyRecord) string {
	if rec.Stale {
		return string(rec.Status) + " (stale)"
	}

	if rec.Status == types.StatusErrored && rec.ErrorMessage != "" {
		return fmt.Sprintf("%s: %s", rec.Status, rec.ErrorMessage)
	}

	return string(rec.Status)
}

func allocationOf(rec types.StrategyRecord) string {
	if rec.Allocation.IsFraction {
		return fmt.Sprintf("%.0f%%", rec.Allocation.Fraction*100)
	}

	return fmt.Sprintf("$%.2f", rec.Allocation.Absolute)
}

func lastSignalOf(rec types.StrategyRecord) string {
	if rec.LastSignalTS == nil {
		return "-"
	}

	return fmt.Sprintf("%s @ %s", rec.LastSignalType, rec.LastSignalTS.Format("15:04:05"))
}
