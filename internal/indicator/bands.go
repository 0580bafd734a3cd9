package indicator

import (
	"math"

	"chartengine/internal/model"
)

// Band defaults.
const (
	BollingerPeriod = 20
	BollingerMult   = 2.0
	KeltnerPeriod   = 20
	KeltnerMult     = 1.5
)

// Bollinger computes the middle SMA band with upper/lower at ±mult standard
// deviations (population σ over the window, as charting platforms do).
func Bollinger(bars []model.Bar, period int, mult float64) (*BandSeries, error) {
	if err := checkPeriod("Bollinger", period); err != nil {
		return nil, err
	}
	if len(bars) < period {
		return nil, nil
	}
	res := &BandSeries{}
	for i := period - 1; i < len(bars); i++ {
		mean := 0.0
		for j := i - period + 1; j <= i; j++ {
			mean += bars[j].Close
		}
		mean /= float64(period)
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := bars[j].Close - mean
			variance += d * d
		}
		sigma := math.Sqrt(variance / float64(period))
		t := bars[i].Time
		res.Middle = append(res.Middle, Point{Time: t, Value: mean})
		res.Upper = append(res.Upper, Point{Time: t, Value: mean + mult*sigma})
		res.Lower = append(res.Lower, Point{Time: t, Value: mean - mult*sigma})
	}
	return res, nil
}

// Keltner computes an EMA middle line with upper/lower at ±mult ATRs.
func Keltner(bars []model.Bar, period int, mult float64) (*BandSeries, error) {
	if err := checkPeriod("Keltner", period); err != nil {
		return nil, err
	}
	if len(bars) < period {
		return nil, nil
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	mids := emaValues(closes, period)
	atrs := wilderValues(trueRanges(bars), period)

	res := &BandSeries{}
	for i := period - 1; i < len(bars); i++ {
		t := bars[i].Time
		res.Middle = append(res.Middle, Point{Time: t, Value: mids[i]})
		res.Upper = append(res.Upper, Point{Time: t, Value: mids[i] + mult*atrs[i]})
		res.Lower = append(res.Lower, Point{Time: t, Value: mids[i] - mult*atrs[i]})
	}
	return res, nil
}
