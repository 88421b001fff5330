package fetcher

import (
	"fmt"
	"io"
	"strings"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/shopspring/decimal"
)

// WriteSummary prints per-chain statistics followed by the grand total.
// Fee totals stay per chain because native tokens differ.
func WriteSummary(w io.Writer, res Result) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Per-chain summary")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	total := 0
	for _, c := range res.Chains {
		total += c.Transfers()
		fmt.Fprintf(w, "%s:\n", c.Chain)
		fmt.Fprintf(w, "  transfers:      %s\n", cctp.FormatCount(int64(c.Transfers())))
		fmt.Fprintf(w, "  amount:         $%s\n", cctp.FormatUSD(c.TotalUSD))
		fmt.Fprintf(w, "  fees (%s):  %s (fee) + %s (gas on dest)\n", c.NativeSymbol, c.TotalFee.StringFixed(8), c.TotalGasFee.StringFixed(8))
		fmt.Fprintf(w, "  average:        $%s\n", cctp.FormatUSD(c.AverageUSD()))
		fmt.Fprintf(w, "  unique senders: ~%d\n", c.UniqueSenders)
		if c.Truncated {
			fmt.Fprintf(w, "  WARNING: %d page request(s) failed; history after the last good page is missing\n", c.FailedPages)
		}
		if c.SkippedEvents > 0 {
			fmt.Fprintf(w, "  skipped malformed events: %d\n", c.SkippedEvents)
		}
		fmt.Fprintln(w)
	}

	grand := res.TotalUSD()
	avg := decimal.Zero
	if total > 0 {
		avg = grand.Div(decimal.NewFromInt(int64(total)))
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "All chains")
	fmt.Fprintf(w, "  transfers: %s\n", cctp.FormatCount(int64(total)))
	fmt.Fprintf(w, "  amount:    $%s\n", cctp.FormatUSD(grand))
	fmt.Fprintln(w, "  fees:      see per-chain totals (native token units differ, not summed)")
	fmt.Fprintf(w, "  average:   $%s\n", cctp.FormatUSD(avg))
	fmt.Fprintln(w, rule)
}
