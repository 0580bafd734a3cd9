package indicator

import "chartengine/internal/model"

// SMA computes the simple moving average of closes. The first value lands at
// the (period-1)th bar; earlier bars have no output.
func SMA(bars []model.Bar, period int) (Series, error) {
	if err := checkPeriod("SMA", period); err != nil {
		return nil, err
	}
	if len(bars) < period {
		return nil, nil
	}
	out := make(Series, 0, len(bars)-period+1)
	sum := 0.0
	for i, b := range bars {
		sum += b.Close
		if i >= period {
			sum -= bars[i-period].Close
		}
		if i >= period-1 {
			out = append(out, Point{Time: b.Time, Value: sum / float64(period)})
		}
	}
	return out, nil
}

// EMA computes the exponential moving average of closes, seeded with an SMA
// over the first period bars.
func EMA(bars []model.Bar, period int) (Series, error) {
	if err := checkPeriod("EMA", period); err != nil {
		return nil, err
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	values := emaValues(closes, period)
	if values == nil {
		return nil, nil
	}
	out := make(Series, 0, len(values)-(period-1))
	for i := period - 1; i < len(values); i++ {
		out = append(out, Point{Time: bars[i].Time, Value: values[i]})
	}
	return out, nil
}

// emaValues computes EMA over a raw float series, returning one value per
// input index. Indexes before period-1 hold the running partial seed and
// must not be emitted. Returns nil when the input is shorter than period.
func emaValues(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	mult := 2.0 / float64(period+1)
	sum := 0.0
	for i, v := range values {
		if i < period {
			sum += v
			out[i] = sum / float64(i+1)
			if i == period-1 {
				out[i] = sum / float64(period)
			}
			continue
		}
		out[i] = v*mult + out[i-1]*(1-mult)
	}
	return out
}
