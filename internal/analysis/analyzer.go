package analysis

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/devblac/cctp-stats/internal/charts"
	"github.com/devblac/cctp-stats/internal/dataset"
	"github.com/shopspring/decimal"
)

// Behavioral segmentation thresholds.
const (
	FrequentUserTransfers = 10
	TopN                  = 10
)

// WhaleUserAmountUSD is the total volume above which a sender counts as a whale.
var WhaleUserAmountUSD = decimal.NewFromInt(100_000)

// Analyzer answers the fixed set of aggregate questions over loaded transfer and gas tables.
// Every analysis prints a report to its writer and returns the computed tables.
type Analyzer struct {
	transfers []cctp.TransferRecord
	gas       []cctp.GasFeeRecord
	hasFrom   bool

	out    io.Writer
	log    *slog.Logger
	charts charts.Renderer
	now    func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithOutput sets the report writer (stdout by default).
func WithOutput(w io.Writer) Option { return func(a *Analyzer) { a.out = w } }

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) Option { return func(a *Analyzer) { a.log = l } }

// WithCharts sets the chart renderer.
func WithCharts(r charts.Renderer) Option { return func(a *Analyzer) { a.charts = r } }

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option { return func(a *Analyzer) { a.now = now } }

// Load reads both CSV files. Any load failure aborts the analysis.
func Load(transfersPath, gasPath string, filter Filter, opts ...Option) (*Analyzer, error) {
	tr, err := dataset.ReadTransfers(transfersPath)
	if err != nil {
		return nil, fmt.Errorf("load transfers: %w", err)
	}
	gas, err := dataset.ReadGasFees(gasPath)
	if err != nil {
		return nil, fmt.Errorf("load gas fees: %w", err)
	}
	a := New(tr, gas, filter, opts...)
	a.printLoaded()
	return a, nil
}

// New builds an analyzer over in-memory tables. When filter is non-empty, gas rows are
// kept only if their (chain, id) transfer passed it.
func New(tr dataset.Transfers, gas []cctp.GasFeeRecord, filter Filter, opts ...Option) *Analyzer {
	a := &Analyzer{
		transfers: tr.Records,
		gas:       gas,
		hasFrom:   tr.HasFrom,
		out:       os.Stdout,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		charts:    charts.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if len(filter) > 0 {
		a.applyFilter(filter)
	}
	return a
}

type txKey struct {
	chain cctp.Chain
	id    string
}

func (a *Analyzer) applyFilter(filter Filter) {
	kept := make([]cctp.TransferRecord, 0, len(a.transfers))
	keys := map[txKey]struct{}{}
	for _, r := range a.transfers {
		if filter.Keep(r) {
			kept = append(kept, r)
			keys[txKey{r.Chain, r.ID}] = struct{}{}
		}
	}
	gas := make([]cctp.GasFeeRecord, 0, len(kept))
	for _, g := range a.gas {
		if _, ok := keys[txKey{g.Chain, g.ID}]; ok {
			gas = append(gas, g)
		}
	}
	a.transfers, a.gas = kept, gas
}

func (a *Analyzer) printLoaded() {
	fmt.Fprintln(a.out, "Loaded data:")
	fmt.Fprintf(a.out, "- transfers: %s\n", cctp.FormatCount(int64(len(a.transfers))))
	fmt.Fprintf(a.out, "- gas fee records: %s\n", cctp.FormatCount(int64(len(a.gas))))
	if start, end, ok := a.period(); ok {
		fmt.Fprintf(a.out, "- period: %s to %s\n", start, end)
	}
}

// period returns the first and last calendar dates present in the transfers.
func (a *Analyzer) period() (string, string, bool) {
	if len(a.transfers) == 0 {
		return "", "", false
	}
	lo, hi := a.transfers[0].BlockTimestamp, a.transfers[0].BlockTimestamp
	for _, r := range a.transfers[1:] {
		lo, hi = min(lo, r.BlockTimestamp), max(hi, r.BlockTimestamp)
	}
	return dateOf(lo), dateOf(hi), true
}

// BasicStats is the global and per-chain breakdown.
type BasicStats struct {
	TotalTransfers int
	TotalAmountUSD decimal.Decimal
	AverageAmount  decimal.Decimal
	// ChainStats is sorted by chain name.
	ChainStats []Group[cctp.Chain]
	// FeeStats is sorted by chain then native symbol; fees are never combined across rows.
	FeeStats []FeeStat
}

// FeeStat sums the fees of one (chain, native symbol) pair.
type FeeStat struct {
	Chain        cctp.Chain
	NativeSymbol string
	Fee          decimal.Decimal
	GasFee       decimal.Decimal
}

// Total is protocol fee plus destination gas fee, in native units.
func (f FeeStat) Total() decimal.Decimal { return f.Fee.Add(f.GasFee) }

func (a *Analyzer) basicStats() BasicStats {
	all := Summarize(a.transfers, amountUSD)

	chainStats := GroupBy(a.transfers, byChain, amountUSD)
	slices.SortStableFunc(chainStats, func(x, y Group[cctp.Chain]) int { return cmp.Compare(x.Key, y.Key) })

	type feeKey struct {
		chain  cctp.Chain
		symbol string
	}
	feeGroups := GroupBy(a.gas,
		func(g cctp.GasFeeRecord) feeKey { return feeKey{g.Chain, g.NativeSymbol} },
		func(g cctp.GasFeeRecord) decimal.Decimal { return g.FeeNative },
		func(g cctp.GasFeeRecord) decimal.Decimal { return g.FeeGasNative },
	)
	fees := make([]FeeStat, 0, len(feeGroups))
	for _, g := range feeGroups {
		fees = append(fees, FeeStat{Chain: g.Key.chain, NativeSymbol: g.Key.symbol, Fee: g.Sums[0], GasFee: g.Sums[1]})
	}
	slices.SortStableFunc(fees, func(x, y FeeStat) int {
		return cmp.Or(cmp.Compare(x.Chain, y.Chain), cmp.Compare(x.NativeSymbol, y.NativeSymbol))
	})

	return BasicStats{
		TotalTransfers: all.Count,
		TotalAmountUSD: all.Total(),
		AverageAmount:  all.Mean(),
		ChainStats:     chainStats,
		FeeStats:       fees,
	}
}

// UserStats is the per-address breakdown and behavioral segmentation.
type UserStats struct {
	TotalUsers          int
	AvgTransfersPerUser decimal.Decimal
	// Ranking holds every user, by transfer count descending, ties by address.
	Ranking     []Group[string]
	TopByCount  []Group[string]
	TopByAmount []Group[string]

	SingleTransferUsers int
	FrequentUsers       int
	WhaleUsers          int
}

func (a *Analyzer) userStats() *UserStats {
	if !a.hasFrom {
		return nil
	}
	ranking := rankUsers(a.transfers)

	byAmount := slices.Clone(ranking)
	slices.SortStableFunc(byAmount, func(x, y Group[string]) int { return y.Total().Cmp(x.Total()) })

	s := &UserStats{
		TotalUsers:          len(ranking),
		AvgTransfersPerUser: decimal.Zero,
		Ranking:             ranking,
		TopByCount:          ranking[:min(TopN, len(ranking))],
		TopByAmount:         byAmount[:min(TopN, len(byAmount))],
	}
	if len(ranking) > 0 {
		s.AvgTransfersPerUser = decimal.NewFromInt(int64(len(a.transfers))).Div(decimal.NewFromInt(int64(len(ranking))))
	}
	for _, u := range ranking {
		if u.Count == 1 {
			s.SingleTransferUsers++
		}
		if u.Count >= FrequentUserTransfers {
			s.FrequentUsers++
		}
		if u.Total().GreaterThanOrEqual(WhaleUserAmountUSD) {
			s.WhaleUsers++
		}
	}
	return s
}

func rankUsers(transfers []cctp.TransferRecord) []Group[string] {
	users := GroupBy(transfers, byUser, amountUSD)
	slices.SortFunc(users, func(x, y Group[string]) int { return cmp.Compare(x.Key, y.Key) })
	slices.SortStableFunc(users, func(x, y Group[string]) int { return cmp.Compare(y.Count, x.Count) })
	return users
}

// TimeStats is the per-day and per-month breakdown.
type TimeStats struct {
	// Daily and Monthly are sorted by ascending date.
	Daily   []Group[string]
	Monthly []Group[string]

	MostActiveDate      string
	MostActiveCount     int
	HighestVolumeDate   string
	HighestVolumeAmount decimal.Decimal
	AvgDailyTransfers   decimal.Decimal
	AvgDailyAmount      decimal.Decimal
}

func (a *Analyzer) timeStats() TimeStats {
	daily := dailyGroups(a.transfers)
	monthly := GroupBy(a.transfers, byMonth, amountUSD)
	slices.SortFunc(monthly, func(x, y Group[string]) int { return cmp.Compare(x.Key, y.Key) })

	ts := TimeStats{
		Daily:               daily,
		Monthly:             monthly,
		HighestVolumeAmount: decimal.Zero,
		AvgDailyTransfers:   decimal.Zero,
		AvgDailyAmount:      decimal.Zero,
	}
	if len(daily) == 0 {
		return ts
	}

	// strict comparisons keep the earliest date on ties
	best, busiest := daily[0], daily[0]
	total := decimal.Zero
	for _, d := range daily {
		if d.Count > busiest.Count {
			busiest = d
		}
		if d.Total().GreaterThan(best.Total()) {
			best = d
		}
		total = total.Add(d.Total())
	}
	days := decimal.NewFromInt(int64(len(daily)))
	ts.MostActiveDate, ts.MostActiveCount = busiest.Key, busiest.Count
	ts.HighestVolumeDate, ts.HighestVolumeAmount = best.Key, best.Total()
	ts.AvgDailyTransfers = decimal.NewFromInt(int64(len(a.transfers))).Div(days)
	ts.AvgDailyAmount = total.Div(days)
	return ts
}

func dailyGroups(transfers []cctp.TransferRecord) []Group[string] {
	daily := GroupBy(transfers, byDate, amountUSD)
	slices.SortFunc(daily, func(x, y Group[string]) int { return cmp.Compare(x.Key, y.Key) })
	return daily
}
