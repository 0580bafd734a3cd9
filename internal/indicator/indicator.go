// Package indicator provides technical indicator calculations over bar
// series. All indicators are pure functions of a bar slice (plus fixed or
// configurable periods): they never mutate their input and recompute from
// scratch, which keeps them safe to run on the worker goroutine against a
// snapshot of the series.
package indicator

import (
	"errors"
	"fmt"
)

// ErrBadPeriod is returned when an indicator is requested with a
// non-positive period.
var ErrBadPeriod = errors.New("indicator: period must be positive")

// Point is one time-ordered indicator sample.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Series is a time-ordered list of indicator points.
type Series []Point

// BandSeries is a band-triple result (Bollinger, Keltner).
type BandSeries struct {
	Upper  Series `json:"upper"`
	Middle Series `json:"middle"`
	Lower  Series `json:"lower"`
}

// MACDSeries is the composite MACD result.
type MACDSeries struct {
	MACD      Series `json:"macd"`
	Signal    Series `json:"signal"`
	Histogram Series `json:"histogram"`
}

// StochSeries is the composite stochastic oscillator result.
type StochSeries struct {
	K Series `json:"k"`
	D Series `json:"d"`
}

// ADXSeries is the composite directional-movement result.
type ADXSeries struct {
	ADX     Series `json:"adx"`
	PlusDI  Series `json:"plus_di"`
	MinusDI Series `json:"minus_di"`
}

// SqueezePoint carries the squeeze ratio plus the on/off flag for one bar.
type SqueezePoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
	On    bool    `json:"on"`
}

func checkPeriod(name string, period int) error {
	if period <= 0 {
		return fmt.Errorf("%s(%d): %w", name, period, ErrBadPeriod)
	}
	return nil
}
