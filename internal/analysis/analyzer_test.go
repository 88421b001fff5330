package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/devblac/cctp-stats/internal/charts"
	"github.com/devblac/cctp-stats/internal/config"
	"github.com/devblac/cctp-stats/internal/dataset"
	"github.com/shopspring/decimal"
)

// 2024-03-01 00:00:00 UTC
const day0 int64 = 1709251200

type fakeRenderer struct {
	err   error
	calls int
	data  charts.Data
}

func (f *fakeRenderer) Render(path string, data charts.Data) error {
	f.calls++
	f.data = data
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(path, []byte("png"), 0o644)
}

func transfer(chain cctp.Chain, id, from string, usd string, ts int64) cctp.TransferRecord {
	return cctp.TransferRecord{
		Chain:          chain,
		ID:             id,
		From:           from,
		Type:           cctp.EventV1,
		AmountUSD:      decimal.RequireFromString(usd),
		BlockTimestamp: ts,
	}
}

func newTestAnalyzer(t *testing.T, recs []cctp.TransferRecord, gas []cctp.GasFeeRecord, opts ...Option) (*Analyzer, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{
		WithOutput(&out),
		WithCharts(&fakeRenderer{}),
		WithClock(func() time.Time { return time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC) }),
	}, opts...)
	return New(dataset.Transfers{Records: recs, HasFrom: true}, gas, nil, opts...), &out
}

func TestSingleUserScenario(t *testing.T) {
	recs := []cctp.TransferRecord{
		transfer(cctp.ChainETH, "a", "0xA", "10", day0+10),
		transfer(cctp.ChainETH, "b", "0xA", "20", day0+20),
		transfer(cctp.ChainETH, "c", "0xA", "5", day0+30),
	}
	a, _ := newTestAnalyzer(t, recs, nil)

	basic := a.BasicStatistics()
	if basic.TotalTransfers != 3 {
		t.Fatalf("total transfers = %d, want 3", basic.TotalTransfers)
	}
	if got := basic.TotalAmountUSD.StringFixed(2); got != "35.00" {
		t.Fatalf("total amount = %s, want 35.00", got)
	}
	if got := basic.AverageAmount.StringFixed(2); got != "11.67" {
		t.Fatalf("average = %s, want 11.67", got)
	}

	users := a.UserAnalysis()
	if users == nil {
		t.Fatalf("expected user stats")
	}
	if users.TotalUsers != 1 || users.Ranking[0].Key != "0xA" || users.Ranking[0].Count != 3 {
		t.Fatalf("unexpected ranking: %+v", users.Ranking)
	}
	if users.SingleTransferUsers != 0 || users.FrequentUsers != 0 || users.WhaleUsers != 0 {
		t.Fatalf("0xA should be in no segment: %+v", users)
	}
}

func TestSegmentsAreIndependent(t *testing.T) {
	var recs []cctp.TransferRecord
	// frequent and whale
	for i := 0; i < 10; i++ {
		recs = append(recs, transfer(cctp.ChainBase, "w"+string(rune('a'+i)), "0xW", "10000", day0))
	}
	// single
	recs = append(recs, transfer(cctp.ChainBase, "s", "0xS", "1", day0))
	// single and whale
	recs = append(recs, transfer(cctp.ChainBase, "x", "0xX", "100000", day0))

	a, _ := newTestAnalyzer(t, recs, nil)
	users := a.UserAnalysis()
	if users.SingleTransferUsers != 2 {
		t.Fatalf("single = %d, want 2", users.SingleTransferUsers)
	}
	if users.FrequentUsers != 1 {
		t.Fatalf("frequent = %d, want 1", users.FrequentUsers)
	}
	if users.WhaleUsers != 2 {
		t.Fatalf("whale = %d, want 2", users.WhaleUsers)
	}
	if users.TopByCount[0].Key != "0xW" {
		t.Fatalf("top by count = %s", users.TopByCount[0].Key)
	}
	// equal totals keep count order
	if users.TopByAmount[0].Key != "0xW" || users.TopByAmount[1].Key != "0xX" {
		t.Fatalf("top by amount = %s, %s", users.TopByAmount[0].Key, users.TopByAmount[1].Key)
	}
}

func TestRankingTiesBreakByAddress(t *testing.T) {
	recs := []cctp.TransferRecord{
		transfer(cctp.ChainETH, "1", "0xC", "1", day0),
		transfer(cctp.ChainETH, "2", "0xB", "1", day0),
		transfer(cctp.ChainETH, "3", "0xA", "1", day0),
		transfer(cctp.ChainETH, "4", "0xC", "1", day0),
	}
	got := rankUsers(recs)
	want := []string{"0xC", "0xA", "0xB"}
	for i, w := range want {
		if got[i].Key != w {
			t.Fatalf("rank %d = %s, want %s", i, got[i].Key, w)
		}
	}
}

func TestUserAnalysisSkippedWithoutFrom(t *testing.T) {
	var out bytes.Buffer
	recs := []cctp.TransferRecord{transfer(cctp.ChainETH, "a", "", "1", day0)}
	a := New(dataset.Transfers{Records: recs}, nil, nil, WithOutput(&out), WithCharts(charts.Disabled{}))

	if a.UserAnalysis() != nil {
		t.Fatalf("expected nil user stats")
	}
	_, wrote, err := a.ExportUserRankings(filepath.Join(t.TempDir(), config.UserRankingFile))
	if err != nil || wrote {
		t.Fatalf("expected silent skip, wrote=%v err=%v", wrote, err)
	}
}

func TestTimeAnalysisPicksEarliestOnTies(t *testing.T) {
	next := day0 + 86400
	recs := []cctp.TransferRecord{
		transfer(cctp.ChainETH, "1", "0xA", "50", next),
		transfer(cctp.ChainETH, "2", "0xA", "30", day0),
		transfer(cctp.ChainETH, "3", "0xA", "20", day0+5),
		transfer(cctp.ChainETH, "4", "0xB", "25", next+5),
		transfer(cctp.ChainETH, "5", "0xB", "25", day0+40*86400),
	}
	a, out := newTestAnalyzer(t, recs, nil)
	ts := a.TimeAnalysis()

	if len(ts.Daily) != 3 || ts.Daily[0].Key != "2024-03-01" || ts.Daily[2].Key != "2024-04-10" {
		t.Fatalf("unexpected daily keys: %+v", ts.Daily)
	}
	if ts.MostActiveDate != "2024-03-01" || ts.MostActiveCount != 2 {
		t.Fatalf("most active = %s/%d", ts.MostActiveDate, ts.MostActiveCount)
	}
	if ts.HighestVolumeDate != "2024-03-02" || !ts.HighestVolumeAmount.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("highest volume = %s/%s", ts.HighestVolumeDate, ts.HighestVolumeAmount)
	}
	if len(ts.Monthly) != 2 || ts.Monthly[0].Key != "2024-03" || ts.Monthly[0].Count != 4 {
		t.Fatalf("unexpected monthly: %+v", ts.Monthly)
	}
	if got := ts.AvgDailyAmount.StringFixed(2); got != "50.00" {
		t.Fatalf("avg daily amount = %s", got)
	}
	if !strings.Contains(out.String(), "2024-04") {
		t.Fatalf("monthly table not printed:\n%s", out.String())
	}
}

func TestVolumeTieKeepsEarliestDay(t *testing.T) {
	recs := []cctp.TransferRecord{
		transfer(cctp.ChainETH, "2", "0xA", "10", day0+86400),
		transfer(cctp.ChainETH, "1", "0xA", "10", day0),
	}
	a, _ := newTestAnalyzer(t, recs, nil)
	ts := a.timeStats()
	if ts.HighestVolumeDate != "2024-03-01" || ts.MostActiveDate != "2024-03-01" {
		t.Fatalf("expected earliest date on ties, got %s / %s", ts.HighestVolumeDate, ts.MostActiveDate)
	}
}

func TestFeeStatsNeverCombineChains(t *testing.T) {
	gas := []cctp.GasFeeRecord{
		{Chain: cctp.ChainPolygon, NativeSymbol: "MATIC", FeeNative: decimal.RequireFromString("0.5"), FeeGasNative: decimal.RequireFromString("0.25")},
		{Chain: cctp.ChainETH, NativeSymbol: "ETH", FeeNative: decimal.RequireFromString("0.001"), FeeGasNative: decimal.Zero},
		{Chain: cctp.ChainPolygon, NativeSymbol: "MATIC", FeeNative: decimal.RequireFromString("0.5"), FeeGasNative: decimal.Zero},
		{Chain: cctp.ChainBase, NativeSymbol: "ETH", FeeNative: decimal.RequireFromString("0.002"), FeeGasNative: decimal.Zero},
	}
	a, out := newTestAnalyzer(t, nil, gas)
	s := a.BasicStatistics()

	if len(s.FeeStats) != 3 {
		t.Fatalf("expected 3 fee groups, got %d", len(s.FeeStats))
	}
	if s.FeeStats[0].Chain != cctp.ChainBase || s.FeeStats[2].Chain != cctp.ChainPolygon {
		t.Fatalf("fee stats not sorted by chain: %+v", s.FeeStats)
	}
	if got := s.FeeStats[2].Total().String(); got != "1.25" {
		t.Fatalf("polygon total = %s, want 1.25", got)
	}
	if !strings.Contains(out.String(), "POLYGON: 1.25000000 MATIC") {
		t.Fatalf("fee line missing:\n%s", out.String())
	}
	if !s.AverageAmount.IsZero() || s.TotalTransfers != 0 {
		t.Fatalf("empty transfers should yield zero stats: %+v", s)
	}
}

func TestSummaryPercentagesSumToHundred(t *testing.T) {
	recs := []cctp.TransferRecord{
		transfer(cctp.ChainOP, "1", "0xA", "33.333333", day0),
		transfer(cctp.ChainETH, "2", "0xB", "100", day0+86400),
		transfer(cctp.ChainOP, "3", "0xA", "0.000001", day0+86400),
		transfer(cctp.ChainAvax, "4", "0xC", "7", day0+2*86400),
	}
	a, _ := newTestAnalyzer(t, recs, nil)
	s := a.SummaryReport()

	var count, volume float64
	for _, c := range s.ChainBreakdown {
		count += c.PercentageOfTotalTransfers
		volume += c.PercentageOfTotalVolume
	}
	if math.Abs(count-100) > 1e-9 || math.Abs(volume-100) > 1e-9 {
		t.Fatalf("percentages do not sum to 100: %v %v", count, volume)
	}
	want := []cctp.Chain{cctp.ChainOP, cctp.ChainETH, cctp.ChainAvax}
	for i, c := range want {
		if s.Overall.ChainsCovered[i] != c {
			t.Fatalf("chains_covered = %v, want %v", s.Overall.ChainsCovered, want)
		}
	}
	if s.DataPeriod.StartDate != "2024-03-01" || s.DataPeriod.EndDate != "2024-03-03" || s.DataPeriod.TotalDays != 3 {
		t.Fatalf("unexpected period: %+v", s.DataPeriod)
	}
	if s.ReportGeneratedAt != "2024-04-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", s.ReportGeneratedAt)
	}
}

func TestSummaryWithNoTransfers(t *testing.T) {
	a, _ := newTestAnalyzer(t, nil, nil)
	s := a.SummaryReport()
	if s.Overall.TotalTransfers != 0 || len(s.ChainBreakdown) != 0 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"chain_breakdown":{}`) {
		t.Fatalf("expected empty breakdown object: %s", raw)
	}
}

func TestRunCompleteWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	recs := []cctp.TransferRecord{
		transfer(cctp.ChainETH, "1", "0xA", "10", day0),
		transfer(cctp.ChainBase, "2", "0xB", "20.5", day0+86400),
		transfer(cctp.ChainETH, "3", "0xA", "5", day0+86400),
	}
	renderer := &fakeRenderer{}
	a, out := newTestAnalyzer(t, recs, nil, WithCharts(renderer))

	rep, err := a.RunComplete(dir)
	if err != nil {
		t.Fatalf("run complete: %v", err)
	}
	if len(rep.Files) != 4 || renderer.calls != 1 {
		t.Fatalf("expected 4 files and one render, got %v / %d", rep.Files, renderer.calls)
	}

	daily, err := os.ReadFile(filepath.Join(dir, config.DailyStatsFile))
	if err != nil {
		t.Fatalf("read daily: %v", err)
	}
	wantDaily := "date,transfer_count,total_amount_usd,average_amount_usd\n" +
		"2024-03-01,1,10.000000,10.000000\n" +
		"2024-03-02,2,25.500000,12.750000\n"
	if string(daily) != wantDaily {
		t.Fatalf("daily csv:\n%s\nwant:\n%s", daily, wantDaily)
	}

	users, err := os.ReadFile(filepath.Join(dir, config.UserRankingFile))
	if err != nil {
		t.Fatalf("read users: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(users)), "\n")
	if lines[0] != "from,transfer_count,total_amount_usd,average_amount_usd" || !strings.HasPrefix(lines[1], "0xA,2,") {
		t.Fatalf("unexpected ranking csv:\n%s", users)
	}

	raw, err := os.ReadFile(filepath.Join(dir, config.SummaryFile))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("summary json: %v", err)
	}
	for _, key := range []string{"report_generated_at", "data_period", "overall_statistics", "time_analysis", "chain_breakdown"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("summary missing %q", key)
		}
	}
	if strings.Index(string(raw), `"ETH"`) > strings.Index(string(raw), `"BASE"`) {
		t.Fatalf("chain breakdown should follow first appearance:\n%s", raw)
	}
	if !strings.Contains(out.String(), "Analysis complete") {
		t.Fatalf("missing banner:\n%s", out.String())
	}
}

func TestRunCompleteSkipsUnavailableCharts(t *testing.T) {
	dir := t.TempDir()
	recs := []cctp.TransferRecord{transfer(cctp.ChainETH, "1", "0xA", "10", day0)}
	a, _ := newTestAnalyzer(t, recs, nil, WithCharts(&fakeRenderer{err: charts.ErrUnavailable}))

	rep, err := a.RunComplete(dir)
	if err != nil {
		t.Fatalf("charts must not fail the run: %v", err)
	}
	if len(rep.Files) != 3 {
		t.Fatalf("expected 3 files, got %v", rep.Files)
	}
	if _, err := os.Stat(filepath.Join(dir, config.ChartFile)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("chart file should not exist: %v", err)
	}
}

func TestRunCompleteSingleTransferWithDefaultCharts(t *testing.T) {
	dir := t.TempDir()
	recs := []cctp.TransferRecord{transfer(cctp.ChainETH, "1", "0xA", "10", day0)}
	a, _ := newTestAnalyzer(t, recs, nil, WithCharts(charts.Default()))

	rep, err := a.RunComplete(dir)
	if err != nil {
		t.Fatalf("run complete: %v", err)
	}
	if len(rep.Files) < 3 {
		t.Fatalf("exports missing: %v", rep.Files)
	}
	if _, err := os.Stat(filepath.Join(dir, config.SummaryFile)); err != nil {
		t.Fatalf("summary not written: %v", err)
	}
}

type panicRenderer struct{}

func (panicRenderer) Render(string, charts.Data) error { panic("axis range") }

func TestGenerateChartsContainsRendererPanic(t *testing.T) {
	recs := []cctp.TransferRecord{transfer(cctp.ChainETH, "1", "0xA", "10", day0)}
	a, _ := newTestAnalyzer(t, recs, nil, WithCharts(panicRenderer{}))

	if a.GenerateCharts(filepath.Join(t.TempDir(), config.ChartFile)) {
		t.Fatalf("a panicking renderer must report failure")
	}
}

func TestFilterAppliesToGasRows(t *testing.T) {
	recs := []cctp.TransferRecord{
		transfer(cctp.ChainETH, "1", "0xA", "10", day0),
		transfer(cctp.ChainBase, "1", "0xB", "500", day0),
	}
	gas := []cctp.GasFeeRecord{
		{Chain: cctp.ChainETH, ID: "1", NativeSymbol: "ETH", FeeNative: decimal.NewFromInt(1), FeeGasNative: decimal.Zero},
		{Chain: cctp.ChainBase, ID: "1", NativeSymbol: "ETH", FeeNative: decimal.NewFromInt(2), FeeGasNative: decimal.Zero},
	}
	filter, err := CompileFilter([]string{"amount_usd >= 100"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	a := New(dataset.Transfers{Records: recs, HasFrom: true}, gas, filter, WithOutput(&bytes.Buffer{}))
	s := a.basicStats()
	if s.TotalTransfers != 1 || len(s.FeeStats) != 1 || s.FeeStats[0].Chain != cctp.ChainBase {
		t.Fatalf("filter not applied: %+v", s)
	}
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	tp := filepath.Join(dir, config.TransfersFile)
	gp := filepath.Join(dir, config.GasFile)
	recs := []cctp.TransferRecord{transfer(cctp.ChainETH, "1", "0xA", "10", day0)}
	if _, err := dataset.WriteTransfers(tp, recs); err != nil {
		t.Fatalf("write transfers: %v", err)
	}
	if err := os.WriteFile(gp, []byte(strings.Join(dataset.GasColumns, ",")+"\n"), 0o644); err != nil {
		t.Fatalf("write gas: %v", err)
	}

	var out bytes.Buffer
	a, err := Load(tp, gp, nil, WithOutput(&out))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(out.String(), "period: 2024-03-01 to 2024-03-01") {
		t.Fatalf("missing load banner:\n%s", out.String())
	}
	if a.basicStats().TotalTransfers != 1 {
		t.Fatalf("expected one transfer")
	}

	if _, err := Load(filepath.Join(dir, "missing.csv"), gp, nil); err == nil {
		t.Fatalf("expected missing file to abort")
	}
}

func TestAbbreviateChecksumsAddresses(t *testing.T) {
	got := abbreviate("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if got != "0x5aAeb605...Ef1BeAed" {
		t.Fatalf("abbreviate = %q", got)
	}
	if got := abbreviate("0xA"); got != "0xA" {
		t.Fatalf("short address changed: %q", got)
	}
}
