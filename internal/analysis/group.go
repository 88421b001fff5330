package analysis

import (
	"time"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/shopspring/decimal"
)

// Group is the summary of the rows sharing one key. Sums holds one total per value
// extractor passed to GroupBy, in the same order.
type Group[K comparable] struct {
	Key   K
	Count int
	Sums  []decimal.Decimal
}

// Total returns the first sum, the USD amount for transfer groupings.
func (g Group[K]) Total() decimal.Decimal {
	if len(g.Sums) == 0 {
		return decimal.Zero
	}
	return g.Sums[0]
}

// Mean returns the first sum divided by the row count.
func (g Group[K]) Mean() decimal.Decimal {
	if g.Count == 0 {
		return decimal.Zero
	}
	return g.Total().Div(decimal.NewFromInt(int64(g.Count)))
}

// GroupBy summarizes rows by key. Groups come back in order of first appearance.
func GroupBy[R any, K comparable](rows []R, key func(R) K, values ...func(R) decimal.Decimal) []Group[K] {
	index := map[K]int{}
	var groups []Group[K]
	for _, r := range rows {
		k := key(r)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			sums := make([]decimal.Decimal, len(values))
			for j := range sums {
				sums[j] = decimal.Zero
			}
			groups = append(groups, Group[K]{Key: k, Sums: sums})
		}
		groups[i].Count++
		for j, v := range values {
			groups[i].Sums[j] = groups[i].Sums[j].Add(v(r))
		}
	}
	return groups
}

// Summarize is GroupBy over a single implicit key.
func Summarize[R any](rows []R, values ...func(R) decimal.Decimal) Group[struct{}] {
	groups := GroupBy(rows, func(R) struct{} { return struct{}{} }, values...)
	if len(groups) == 0 {
		sums := make([]decimal.Decimal, len(values))
		for j := range sums {
			sums[j] = decimal.Zero
		}
		return Group[struct{}]{Sums: sums}
	}
	return groups[0]
}

func amountUSD(r cctp.TransferRecord) decimal.Decimal { return r.AmountUSD }

func byChain(r cctp.TransferRecord) cctp.Chain { return r.Chain }

func byUser(r cctp.TransferRecord) string { return r.From }

func byDate(r cctp.TransferRecord) string { return dateOf(r.BlockTimestamp) }

func byMonth(r cctp.TransferRecord) string { return monthOf(r.BlockTimestamp) }

// dateOf returns the UTC calendar date of a unix timestamp.
func dateOf(ts int64) string { return time.Unix(ts, 0).UTC().Format(time.DateOnly) }

func monthOf(ts int64) string { return time.Unix(ts, 0).UTC().Format("2006-01") }
