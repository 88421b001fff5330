package analysis

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const rule = "============================================================"

// recentDays is how many trailing days the time report lists.
const recentDays = 10

func heading(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", rule, title, rule)
}

// BasicStatistics prints and returns the global and per-chain breakdown.
func (a *Analyzer) BasicStatistics() BasicStats {
	s := a.basicStats()
	w := a.out

	heading(w, "Basic statistics")
	fmt.Fprintln(w, "1. Transfers:")
	fmt.Fprintf(w, "   - total transfers: %s\n", cctp.FormatCount(int64(s.TotalTransfers)))
	fmt.Fprintf(w, "   - total amount: $%s\n", cctp.FormatUSD(s.TotalAmountUSD))
	fmt.Fprintf(w, "   - average amount: $%s\n", cctp.FormatUSD(s.AverageAmount))

	fmt.Fprintln(w, "\n2. Fees (per chain, native units):")
	for _, f := range s.FeeStats {
		fmt.Fprintf(w, "   - %s: %s %s (fee: %s + gas: %s)\n",
			f.Chain, f.Total().StringFixed(8), f.NativeSymbol, f.Fee.StringFixed(8), f.GasFee.StringFixed(8))
	}

	fmt.Fprintln(w, "\n3. Per chain:")
	printGroups(w, "chain", s.ChainStats)
	return s
}

// UserAnalysis prints and returns the per-address breakdown. It returns nil when the
// loaded transfers carry no source address.
func (a *Analyzer) UserAnalysis() *UserStats {
	w := a.out
	heading(w, "User analysis")
	s := a.userStats()
	if s == nil {
		a.log.Warn("transfers have no from column, skipping user analysis")
		fmt.Fprintln(w, "Skipped: transfers have no source address column.")
		return nil
	}

	fmt.Fprintln(w, "1. Users:")
	fmt.Fprintf(w, "   - total users: %s\n", cctp.FormatCount(int64(s.TotalUsers)))
	fmt.Fprintf(w, "   - average transfers per user: %s\n", s.AvgTransfersPerUser.StringFixed(2))

	fmt.Fprintf(w, "\n2. Top %d addresses by transfer count:\n", TopN)
	for i, u := range s.TopByCount {
		fmt.Fprintf(w, "   %2d. %s: %d transfers, $%s\n", i+1, abbreviate(u.Key), u.Count, cctp.FormatUSD(u.Total()))
	}
	fmt.Fprintf(w, "\n3. Top %d addresses by amount:\n", TopN)
	for i, u := range s.TopByAmount {
		fmt.Fprintf(w, "   %2d. %s: $%s, %d transfers\n", i+1, abbreviate(u.Key), cctp.FormatUSD(u.Total()), u.Count)
	}

	fmt.Fprintln(w, "\n4. Segments:")
	fmt.Fprintf(w, "   - single-transfer users: %s (%s%%)\n", cctp.FormatCount(int64(s.SingleTransferUsers)), share(s.SingleTransferUsers, s.TotalUsers))
	fmt.Fprintf(w, "   - users with >=%d transfers: %s (%s%%)\n", FrequentUserTransfers, cctp.FormatCount(int64(s.FrequentUsers)), share(s.FrequentUsers, s.TotalUsers))
	fmt.Fprintf(w, "   - users with >=$%s total: %s (%s%%)\n", cctp.FormatUSD(WhaleUserAmountUSD), cctp.FormatCount(int64(s.WhaleUsers)), share(s.WhaleUsers, s.TotalUsers))
	return s
}

// TimeAnalysis prints and returns the per-day and per-month breakdown.
func (a *Analyzer) TimeAnalysis() TimeStats {
	s := a.timeStats()
	w := a.out

	heading(w, "Time analysis")
	fmt.Fprintln(w, "1. Overview:")
	fmt.Fprintf(w, "   - days with data: %d\n", len(s.Daily))
	if len(s.Daily) > 0 {
		fmt.Fprintf(w, "   - most active day: %s (%d transfers)\n", s.MostActiveDate, s.MostActiveCount)
		fmt.Fprintf(w, "   - highest volume day: %s ($%s)\n", s.HighestVolumeDate, cctp.FormatUSD(s.HighestVolumeAmount))
	}
	fmt.Fprintf(w, "   - average transfers per day: %s\n", s.AvgDailyTransfers.StringFixed(1))
	fmt.Fprintf(w, "   - average amount per day: $%s\n", cctp.FormatUSD(s.AvgDailyAmount))

	fmt.Fprintf(w, "\n2. Last %d days:\n", recentDays)
	printGroups(w, "date", s.Daily[max(0, len(s.Daily)-recentDays):])

	fmt.Fprintln(w, "\n3. Per month:")
	printGroups(w, "month", s.Monthly)
	return s
}

func printGroups[K comparable](w io.Writer, label string, groups []Group[K]) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\ttransfers\ttotal_usd\taverage_usd\t\n", label)
	for _, g := range groups {
		fmt.Fprintf(tw, "%v\t%d\t%s\t%s\t\n", g.Key, g.Count, cctp.FormatUSD(g.Total()), cctp.FormatUSD(g.Mean()))
	}
	tw.Flush()
}

// abbreviate renders an address as its first 10 and last 8 characters.
// EVM addresses are shown in checksum form.
func abbreviate(addr string) string {
	if common.IsHexAddress(addr) {
		addr = common.HexToAddress(addr).Hex()
	}
	if len(addr) <= 18 {
		return addr
	}
	return addr[:10] + "..." + addr[len(addr)-8:]
}

// share renders part/total as a percentage with one decimal; zero total yields 0.0.
func share(part, total int) string {
	if total == 0 {
		return "0.0"
	}
	return decimal.NewFromInt(int64(part)).Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).StringFixed(1)
}

func banner(w io.Writer, files []string, skipped []string) {
	heading(w, "Analysis complete")
	fmt.Fprintln(w, "Generated files:")
	for _, f := range files {
		fmt.Fprintf(w, "- %s\n", f)
	}
	for _, s := range skipped {
		fmt.Fprintf(w, "- skipped: %s\n", s)
	}
	if len(files) == 0 && len(skipped) == 0 {
		fmt.Fprintln(w, "- none")
	}
}
