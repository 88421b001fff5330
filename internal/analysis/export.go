package analysis

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/devblac/cctp-stats/internal/charts"
	"github.com/devblac/cctp-stats/internal/config"
	"github.com/devblac/cctp-stats/internal/dataset"
	"github.com/shopspring/decimal"
)

var groupColumns = []string{"transfer_count", "total_amount_usd", "average_amount_usd"}

// ExportDailyStats writes date,transfer_count,total_amount_usd,average_amount_usd in date order.
func (a *Analyzer) ExportDailyStats(path string) ([]Group[string], error) {
	daily := dailyGroups(a.transfers)
	if err := dataset.WriteFile(path, func(w io.Writer) error {
		return encodeGroups(w, "date", daily)
	}); err != nil {
		return nil, fmt.Errorf("export daily stats: %w", err)
	}
	fmt.Fprintf(a.out, "Exported daily stats: %s\n", path)
	return daily, nil
}

// ExportUserRankings writes every user by transfer count descending. It returns
// false without writing when the transfers carry no source address.
func (a *Analyzer) ExportUserRankings(path string) ([]Group[string], bool, error) {
	if !a.hasFrom {
		a.log.Warn("transfers have no from column, skipping user ranking export")
		return nil, false, nil
	}
	ranking := rankUsers(a.transfers)
	if err := dataset.WriteFile(path, func(w io.Writer) error {
		return encodeGroups(w, "from", ranking)
	}); err != nil {
		return nil, false, fmt.Errorf("export user rankings: %w", err)
	}
	fmt.Fprintf(a.out, "Exported user ranking: %s\n", path)
	return ranking, true, nil
}

func encodeGroups(w io.Writer, keyColumn string, groups []Group[string]) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{keyColumn}, groupColumns...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, g := range groups {
		row := []string{
			g.Key,
			strconv.Itoa(g.Count),
			g.Total().Round(6).StringFixed(6),
			g.Mean().Round(6).StringFixed(6),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary is the JSON report.
type Summary struct {
	ReportGeneratedAt string          `json:"report_generated_at"`
	DataPeriod        DataPeriod      `json:"data_period"`
	Overall           Overall         `json:"overall_statistics"`
	Time              TimeHighlights  `json:"time_analysis"`
	ChainBreakdown    ChainBreakdowns `json:"chain_breakdown"`
}

// DataPeriod spans the earliest and latest transfer.
type DataPeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	TotalDays int    `json:"total_days"`
}

// Overall holds the totals over every loaded transfer.
type Overall struct {
	TotalTransfers   int          `json:"total_transfers"`
	TotalAmountUSD   float64      `json:"total_amount_usd"`
	AverageAmountUSD float64      `json:"average_amount_usd"`
	ChainsCovered    []cctp.Chain `json:"chains_covered"`
}

// TimeHighlights names the busiest and largest days.
type TimeHighlights struct {
	MostActiveDate        string  `json:"most_active_date"`
	MostActiveTransfers   int     `json:"most_active_transfers"`
	HighestVolumeDate     string  `json:"highest_volume_date"`
	HighestVolumeAmount   float64 `json:"highest_volume_amount"`
	DailyAverageTransfers float64 `json:"daily_average_transfers"`
	DailyAverageAmount    float64 `json:"daily_average_amount"`
}

// ChainBreakdown is one chain's share of the loaded transfers.
type ChainBreakdown struct {
	Chain                      cctp.Chain `json:"-"`
	TotalTransfers             int        `json:"total_transfers"`
	TotalAmountUSD             float64    `json:"total_amount_usd"`
	AverageAmountUSD           float64    `json:"average_amount_usd"`
	PercentageOfTotalTransfers float64    `json:"percentage_of_total_transfers"`
	PercentageOfTotalVolume    float64    `json:"percentage_of_total_volume"`
}

// ChainBreakdowns marshals as a JSON object keyed by chain, in first-appearance order.
type ChainBreakdowns []ChainBreakdown

func (cb ChainBreakdowns) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cb {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(c.Chain))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SummaryReport computes the JSON report without printing the intermediate analyses.
func (a *Analyzer) SummaryReport() Summary {
	basic := a.basicStats()
	ts := a.timeStats()
	start, end, _ := a.period()

	chains := GroupBy(a.transfers, byChain, amountUSD)
	covered := make([]cctp.Chain, 0, len(chains))
	breakdown := make(ChainBreakdowns, 0, len(chains))
	for _, g := range chains {
		covered = append(covered, g.Key)
		breakdown = append(breakdown, ChainBreakdown{
			Chain:                      g.Key,
			TotalTransfers:             g.Count,
			TotalAmountUSD:             g.Total().InexactFloat64(),
			AverageAmountUSD:           g.Mean().InexactFloat64(),
			PercentageOfTotalTransfers: percent(decimal.NewFromInt(int64(g.Count)), decimal.NewFromInt(int64(basic.TotalTransfers))),
			PercentageOfTotalVolume:    percent(g.Total(), basic.TotalAmountUSD),
		})
	}

	return Summary{
		ReportGeneratedAt: a.now().Format(time.RFC3339),
		DataPeriod:        DataPeriod{StartDate: start, EndDate: end, TotalDays: len(ts.Daily)},
		Overall: Overall{
			TotalTransfers:   basic.TotalTransfers,
			TotalAmountUSD:   basic.TotalAmountUSD.InexactFloat64(),
			AverageAmountUSD: basic.AverageAmount.InexactFloat64(),
			ChainsCovered:    covered,
		},
		Time: TimeHighlights{
			MostActiveDate:        ts.MostActiveDate,
			MostActiveTransfers:   ts.MostActiveCount,
			HighestVolumeDate:     ts.HighestVolumeDate,
			HighestVolumeAmount:   ts.HighestVolumeAmount.InexactFloat64(),
			DailyAverageTransfers: ts.AvgDailyTransfers.InexactFloat64(),
			DailyAverageAmount:    ts.AvgDailyAmount.InexactFloat64(),
		},
		ChainBreakdown: breakdown,
	}
}

// ExportSummaryReport writes the JSON report to path.
func (a *Analyzer) ExportSummaryReport(path string) (Summary, error) {
	s := a.SummaryReport()
	err := dataset.WriteFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(s)
	})
	if err != nil {
		return Summary{}, fmt.Errorf("export summary: %w", err)
	}
	fmt.Fprintf(a.out, "Exported summary: %s\n", path)
	return s, nil
}

func percent(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Mul(decimal.NewFromInt(100)).Div(total).InexactFloat64()
}

// ChartData prepares the four chart panels from the loaded transfers.
func (a *Analyzer) ChartData() charts.Data {
	var d charts.Data
	for _, g := range GroupBy(a.transfers, byChain, amountUSD) {
		d.ChainCounts = append(d.ChainCounts, charts.Share{Label: string(g.Key), Value: float64(g.Count)})
		d.ChainVolumes = append(d.ChainVolumes, charts.Share{Label: string(g.Key), Value: g.Total().InexactFloat64()})
	}
	for _, g := range dailyGroups(a.transfers) {
		day, err := time.Parse(time.DateOnly, g.Key)
		if err != nil {
			continue
		}
		d.Daily = append(d.Daily, charts.DailyCount{Date: day, Count: g.Count})
	}
	d.Amounts = make([]float64, 0, len(a.transfers))
	for _, r := range a.transfers {
		d.Amounts = append(d.Amounts, r.AmountUSD.InexactFloat64())
	}
	return d
}

// GenerateCharts renders the chart image. Failures are logged and reported as false.
func (a *Analyzer) GenerateCharts(path string) bool {
	err := a.render(path)
	switch {
	case errors.Is(err, charts.ErrUnavailable):
		a.log.Warn("chart rendering unavailable, skipping charts")
		return false
	case err != nil:
		a.log.Warn("chart rendering failed", "path", path, "err", err)
		return false
	}
	fmt.Fprintf(a.out, "Generated charts: %s\n", path)
	return true
}

func (a *Analyzer) render(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()
	return a.charts.Render(path, a.ChartData())
}

// Report collects everything a complete run computed.
type Report struct {
	Basic       BasicStats
	Time        TimeStats
	Users       *UserStats
	Daily       []Group[string]
	UserRanking []Group[string]
	Summary     Summary
	Files       []string
}

// RunComplete runs every analysis and export, writing output files into outDir.
func (a *Analyzer) RunComplete(outDir string) (*Report, error) {
	path := func(name string) string { return filepath.Join(outDir, name) }

	fmt.Fprintln(a.out, "Starting CCTP data analysis...")
	fmt.Fprintf(a.out, "Analysis time: %s\n", a.now().Format(time.DateTime))

	rep := &Report{
		Basic: a.BasicStatistics(),
		Time:  a.TimeAnalysis(),
		Users: a.UserAnalysis(),
	}

	heading(a.out, "Exports")
	var err error
	if rep.Daily, err = a.ExportDailyStats(path(config.DailyStatsFile)); err != nil {
		return nil, err
	}
	rep.Files = append(rep.Files, path(config.DailyStatsFile))

	var wrote bool
	if rep.UserRanking, wrote, err = a.ExportUserRankings(path(config.UserRankingFile)); err != nil {
		return nil, err
	}
	var skipped []string
	if wrote {
		rep.Files = append(rep.Files, path(config.UserRankingFile))
	} else {
		skipped = append(skipped, config.UserRankingFile+" (no source addresses)")
	}

	if rep.Summary, err = a.ExportSummaryReport(path(config.SummaryFile)); err != nil {
		return nil, err
	}
	rep.Files = append(rep.Files, path(config.SummaryFile))

	fmt.Fprintln(a.out, "\nGenerating charts...")
	if a.GenerateCharts(path(config.ChartFile)) {
		rep.Files = append(rep.Files, path(config.ChartFile))
	} else {
		skipped = append(skipped, config.ChartFile+" (charts unavailable)")
	}

	banner(a.out, rep.Files, skipped)
	return rep, nil
}
