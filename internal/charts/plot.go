//go:build !nocharts

package charts

import (
	"fmt"
	"image/color"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	histogramBins = 50
	imageDPI      = 300
)

// Default returns the renderer compiled into this build.
func Default() Renderer { return Gonum{Width: 12 * vg.Inch, Height: 8 * vg.Inch} }

// Gonum renders a 2x2 PNG with gonum/plot.
type Gonum struct {
	Width  vg.Length
	Height vg.Length
}

// Render draws the four panels into a PNG at path. A panic raised by the
// plotting backend is returned as an error.
func (g Gonum) Render(path string, data Data) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render charts: %v", r)
		}
	}()

	countPie := pie("Transfer count by chain", data.ChainCounts)
	volumePie := pie("Transfer volume by chain", data.ChainVolumes)

	daily, err := dailyLine(data.Daily)
	if err != nil {
		return err
	}
	hist, err := amountHistogram(data.Amounts)
	if err != nil {
		return err
	}

	img := vgimg.NewWith(vgimg.UseWH(g.Width, g.Height), vgimg.UseDPI(imageDPI))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 2, Cols: 2,
		PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2,
		PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2,
	}
	plots := [][]*plot.Plot{{countPie, volumePie}, {daily, hist}}
	canvases := plot.Align(plots, tiles, dc)
	for r := range plots {
		for c := range plots[r] {
			plots[r][c].Draw(canvases[r][c])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close chart file: %w", err)
	}
	return nil
}

func pie(title string, shares []Share) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()

	total := 0.0
	for _, s := range shares {
		total += s.Value
	}
	w := &wedges{total: total}
	for i, s := range shares {
		if s.Value <= 0 {
			continue
		}
		wd := wedge{share: s, color: plotutil.Color(i)}
		w.items = append(w.items, wd)
		p.Legend.Add(fmt.Sprintf("%s %.1f%%", s.Label, s.Value/total*100), wd)
	}
	p.Add(w)
	p.Legend.Top = true
	return p
}

func dailyLine(points []DailyCount) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Daily transfer count"
	p.Y.Label.Text = "transfers"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = float64(pt.Date.Unix())
		xys[i].Y = float64(pt.Count)
	}
	if len(xys) == 0 {
		return p, nil
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("daily line: %w", err)
	}
	line.Color = plotutil.Color(0)
	p.Add(line)
	return p, nil
}

func amountHistogram(amounts []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Transfer amount distribution"
	p.X.Label.Text = "amount (USD)"
	p.Y.Label.Text = "frequency"
	if len(amounts) == 0 {
		return p, nil
	}

	h, err := plotter.NewHist(plotter.Values(amounts), histogramBins)
	if err != nil {
		return nil, fmt.Errorf("amount histogram: %w", err)
	}
	h.LogY = true
	h.FillColor = color.NRGBA{R: 31, G: 119, B: 180, A: 180}
	p.Add(h)
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	// A log axis needs a positive, non-empty range. A single filled bin gives neither.
	lo, hi := weightRange(h.Bins)
	if hi > 0 && lo == hi {
		p.Y.Min, p.Y.Max = hi/2, hi*2
	}
	return p, nil
}

// weightRange returns the smallest and largest weight among non-empty bins.
func weightRange(bins []plotter.HistogramBin) (lo, hi float64) {
	for _, b := range bins {
		if b.Weight <= 0 {
			continue
		}
		if lo == 0 || b.Weight < lo {
			lo = b.Weight
		}
		if b.Weight > hi {
			hi = b.Weight
		}
	}
	return lo, hi
}

type wedge struct {
	share Share
	color color.Color
}

// Thumbnail draws the legend swatch.
func (w wedge) Thumbnail(c *draw.Canvas) {
	c.FillPolygon(w.color, []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	})
}

// wedges is a plot.Plotter drawing a pie centred in the data area.
type wedges struct {
	items []wedge
	total float64
}

func (ws *wedges) Plot(c draw.Canvas, _ *plot.Plot) {
	if ws.total <= 0 {
		return
	}
	center := vg.Point{X: (c.Min.X + c.Max.X) / 2, Y: (c.Min.Y + c.Max.Y) / 2}
	radius := c.Max.X - c.Min.X
	if h := c.Max.Y - c.Min.Y; h < radius {
		radius = h
	}
	radius = radius * 0.45

	start := math.Pi / 2
	for _, w := range ws.items {
		angle := -2 * math.Pi * w.share.Value / ws.total
		var path vg.Path
		path.Move(center)
		path.Arc(center, radius, start, angle)
		path.Close()
		c.SetColor(w.color)
		c.Fill(path)
		start += angle
	}
}
