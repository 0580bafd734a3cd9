package indicator

import (
	"math"

	"chartengine/internal/model"
)

// trueRanges returns the true range per bar: max(high-low, |high-prevClose|,
// |low-prevClose|). The first bar uses its own high-low span.
func trueRanges(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATR computes the average true range with Wilder smoothing. The first value
// lands at the (period-1)th bar.
func ATR(bars []model.Bar, period int) (Series, error) {
	if err := checkPeriod("ATR", period); err != nil {
		return nil, err
	}
	if len(bars) < period {
		return nil, nil
	}
	trs := trueRanges(bars)
	values := wilderValues(trs, period)
	out := make(Series, 0, len(bars)-period+1)
	for i := period - 1; i < len(bars); i++ {
		out = append(out, Point{Time: bars[i].Time, Value: values[i]})
	}
	return out, nil
}

// wilderValues smooths a raw series the Wilder way: SMA seed over the first
// period values, then v = (prev*(period-1) + current) / period. One output
// per input index; indexes before period-1 hold partial seeds.
func wilderValues(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	p := float64(period)
	sum := 0.0
	for i, v := range values {
		if i < period {
			sum += v
			out[i] = sum / float64(i+1)
			if i == period-1 {
				out[i] = sum / p
			}
			continue
		}
		out[i] = (out[i-1]*(p-1) + v) / p
	}
	return out
}
