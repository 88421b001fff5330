package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/devblac/cctp-stats/internal/config"
	"github.com/devblac/cctp-stats/internal/metrics"
	"github.com/devblac/cctp-stats/internal/subgraph"
	"github.com/shopspring/decimal"
)

// PageSource returns one combined page of legacy and v2 burn events.
type PageSource interface {
	FetchPage(ctx context.Context, first, skip int) (subgraph.Page, error)
}

// SourceFactory builds the page source for a chain.
type SourceFactory func(chain config.ChainConfig) PageSource

// SubgraphSources builds subgraph clients bounded by the request timeout.
func SubgraphSources(timeout time.Duration) SourceFactory {
	return func(chain config.ChainConfig) PageSource {
		return subgraph.New(chain.Endpoint, timeout)
	}
}

// Options are the pagination constants of a run.
type Options struct {
	PageSize  int
	PageDelay time.Duration
}

// Fetcher walks every page of every configured chain, one at a time.
type Fetcher struct {
	newSource SourceFactory
	pageSize  int
	delay     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// New builds a fetcher. A nil metrics value disables counters.
func New(newSource SourceFactory, opts Options, log *slog.Logger, mtr *metrics.Metrics) *Fetcher {
	if opts.PageSize <= 0 {
		opts.PageSize = config.DefaultPageSize
	}
	return &Fetcher{
		newSource: newSource,
		pageSize:  opts.PageSize,
		delay:     opts.PageDelay,
		sleep:     sleepContext,
		log:       log,
		metrics:   mtr,
	}
}

// ChainResult is what one chain contributed to a run.
type ChainResult struct {
	Chain        cctp.Chain
	NativeSymbol string
	Records      cctp.Dataset

	Pages         int
	FailedPages   int
	SkippedEvents int
	// Truncated is set when pagination stopped on a failed page, so later pages were never requested.
	Truncated bool

	TotalUSD      decimal.Decimal
	TotalFee      decimal.Decimal
	TotalGasFee   decimal.Decimal
	UniqueSenders uint64
}

// Transfers returns the number of records the chain produced.
func (r ChainResult) Transfers() int { return r.Records.Len() }

// AverageUSD returns the mean transfer amount, zero for an empty chain.
func (r ChainResult) AverageUSD() decimal.Decimal {
	if r.Transfers() == 0 {
		return decimal.Zero
	}
	return r.TotalUSD.Div(decimal.NewFromInt(int64(r.Transfers())))
}

// Result is the merged outcome of a multi-chain run.
type Result struct {
	Dataset cctp.Dataset
	Chains  []ChainResult
}

// TotalUSD sums the USD amount of every chain.
func (r Result) TotalUSD() decimal.Decimal {
	total := decimal.Zero
	for _, c := range r.Chains {
		total = total.Add(c.TotalUSD)
	}
	return total
}

// Truncated lists chains whose pagination stopped on a failed page.
func (r Result) Truncated() []cctp.Chain {
	var out []cctp.Chain
	for _, c := range r.Chains {
		if c.Truncated {
			out = append(out, c.Chain)
		}
	}
	return out
}

// Run processes chains sequentially in the given order and merges their records.
// Only context cancellation aborts a run; page failures are recorded per chain.
func (f *Fetcher) Run(ctx context.Context, chains []config.ChainConfig) (Result, error) {
	var res Result
	for _, chain := range chains {
		cr, err := f.ProcessChain(ctx, chain)
		if err != nil {
			return res, fmt.Errorf("chain %s: %w", chain.Name, err)
		}
		res.Dataset.Append(cr.Records)
		res.Chains = append(res.Chains, cr)
	}
	return res, nil
}

// ProcessChain fetches pages at offsets 0, n, 2n, ... until a page holds fewer than n
// combined items. A failed page is handled like an empty one and ends the chain.
func (f *Fetcher) ProcessChain(ctx context.Context, chain config.ChainConfig) (ChainResult, error) {
	res := ChainResult{
		Chain:        chain.Name,
		NativeSymbol: chain.NativeSymbol,
		TotalUSD:     decimal.Zero,
		TotalFee:     decimal.Zero,
		TotalGasFee:  decimal.Zero,
	}
	src := f.newSource(chain)
	senders := hyperloglog.New14()
	label := string(chain.Name)

	f.log.Info("chain started", "chain", label, "page_size", f.pageSize)

	for page := 0; ; page++ {
		offset := page * f.pageSize
		out := f.fetch(ctx, src, label, offset)
		if out.kind == outcomeTransientError && ctx.Err() != nil {
			return res, ctx.Err()
		}

		switch out.kind {
		case outcomeTransientError:
			res.FailedPages++
			res.Truncated = true
		case outcomeEndOfData, outcomeItems:
			res.Pages++
		}
		if out.kind != outcomeItems {
			break
		}

		for _, ev := range out.page.Events() {
			tr, gas, err := normalize(chain, ev)
			if err != nil {
				res.SkippedEvents++
				f.log.Warn("skipping malformed event", "chain", label, "id", ev.ID, "error", err)
				continue
			}
			res.Records.Transfers = append(res.Records.Transfers, tr)
			res.Records.GasFees = append(res.Records.GasFees, gas)
			res.TotalUSD = res.TotalUSD.Add(tr.AmountUSD)
			res.TotalFee = res.TotalFee.Add(gas.FeeNative)
			res.TotalGasFee = res.TotalGasFee.Add(gas.FeeGasNative)
			senders.Insert([]byte(tr.From))
			f.metrics.Records(label, string(tr.Type), 1)
		}

		n := out.page.Len()
		f.log.Info("page fetched", "chain", label, "page", page+1, "items", n, "total", res.Transfers())

		if n < f.pageSize {
			break
		}
		if err := f.sleep(ctx, f.delay); err != nil {
			return res, err
		}
	}

	if res.Transfers() > 0 {
		res.UniqueSenders = senders.Estimate()
	}
	f.metrics.ChainCompleted(label, res.Truncated)
	if res.Truncated {
		f.log.Warn("chain history may be incomplete", "chain", label, "failed_pages", res.FailedPages, "total", res.Transfers())
	}
	f.log.Info("chain finished", "chain", label, "total", res.Transfers(), "amount_usd", res.TotalUSD.StringFixed(2))
	return res, nil
}

type outcomeKind int

const (
	outcomeItems outcomeKind = iota
	outcomeEndOfData
	outcomeTransientError
)

// outcome separates a page with items from legitimate end of data and from a failed request.
type outcome struct {
	kind outcomeKind
	page subgraph.Page
}

func (f *Fetcher) fetch(ctx context.Context, src PageSource, chain string, offset int) outcome {
	page, err := src.FetchPage(ctx, f.pageSize, offset)
	if err != nil {
		f.metrics.PageFailed(chain)
		f.log.Warn("page request failed", "chain", chain, "offset", offset, "error", err)
		return outcome{kind: outcomeTransientError}
	}
	f.metrics.PageFetched(chain)
	if page.Len() == 0 {
		return outcome{kind: outcomeEndOfData, page: page}
	}
	return outcome{kind: outcomeItems, page: page}
}

func normalize(chain config.ChainConfig, ev subgraph.BurnEvent) (cctp.TransferRecord, cctp.GasFeeRecord, error) {
	if ev.Err != nil {
		return cctp.TransferRecord{}, cctp.GasFeeRecord{}, ev.Err
	}
	amount, err := cctp.ScaleUnits(ev.Amount, cctp.USDDecimals)
	if err != nil {
		return cctp.TransferRecord{}, cctp.GasFeeRecord{}, fmt.Errorf("amount: %w", err)
	}
	ts, err := strconv.ParseInt(ev.BlockTimestamp, 10, 64)
	if err != nil {
		return cctp.TransferRecord{}, cctp.GasFeeRecord{}, fmt.Errorf("blockTimestamp: %w", err)
	}

	typ := cctp.EventV1
	fee, gasFee := decimal.Zero, decimal.Zero
	if ev.HasFee {
		typ = cctp.EventV2
		if fee, err = cctp.ScaleUnits(ev.Fee, chain.Decimals); err != nil {
			return cctp.TransferRecord{}, cctp.GasFeeRecord{}, fmt.Errorf("fee: %w", err)
		}
		if gasFee, err = cctp.ScaleUnits(ev.FeeForGas, chain.Decimals); err != nil {
			return cctp.TransferRecord{}, cctp.GasFeeRecord{}, fmt.Errorf("feeForgasOnDestination: %w", err)
		}
	}

	return cctp.TransferRecord{
			Chain:          chain.Name,
			ID:             ev.ID,
			From:           ev.From,
			Type:           typ,
			AmountUSD:      amount,
			BlockTimestamp: ts,
		}, cctp.GasFeeRecord{
			Chain:          chain.Name,
			ID:             ev.ID,
			From:           ev.From,
			Type:           typ,
			FeeNative:      fee,
			FeeGasNative:   gasFee,
			NativeSymbol:   chain.NativeSymbol,
			BlockTimestamp: ts,
		}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
