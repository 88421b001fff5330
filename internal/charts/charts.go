// Package charts renders the four-panel analysis image. Builds tagged nocharts
// carry no plotting backend and report ErrUnavailable.
package charts

import (
	"errors"
	"time"
)

// ErrUnavailable is returned by renderers compiled without a plotting backend.
var ErrUnavailable = errors.New("chart rendering not available in this build")

// Share is one labelled slice of a pie panel.
type Share struct {
	Label string
	Value float64
}

// DailyCount is one point of the daily transfer count line.
type DailyCount struct {
	Date  time.Time
	Count int
}

// Data is everything the four panels need.
type Data struct {
	ChainCounts  []Share
	ChainVolumes []Share
	Daily        []DailyCount
	Amounts      []float64
}

// Renderer writes a chart image for data to path.
type Renderer interface {
	Render(path string, data Data) error
}

// Disabled is a renderer that always reports ErrUnavailable.
type Disabled struct{}

func (Disabled) Render(string, Data) error { return ErrUnavailable }
