package indicator

import (
	"time"

	"chartengine/internal/model"
)

// RVOLPeriod is the default rolling-average window for relative volume.
const RVOLPeriod = 20

// VWAP computes the session-scoped volume-weighted average price:
// cumulative (typical price × volume) over cumulative volume, resetting at
// each UTC day boundary. Daily and coarser series never cross a boundary
// mid-session, so they accumulate over the whole loaded range.
func VWAP(bars []model.Bar) (Series, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	out := make(Series, 0, len(bars))
	var cumPV, cumV float64
	prevDay := dayOf(bars[0].Time)
	for _, b := range bars {
		if day := dayOf(b.Time); day != prevDay {
			cumPV, cumV = 0, 0
			prevDay = day
		}
		typical := (b.High + b.Low + b.Close) / 3
		cumPV += typical * b.Volume
		cumV += b.Volume
		v := typical
		if cumV > 0 {
			v = cumPV / cumV
		}
		out = append(out, Point{Time: b.Time, Value: v})
	}
	return out, nil
}

func dayOf(ts int64) int64 {
	return time.Unix(ts, 0).UTC().Truncate(24 * time.Hour).Unix()
}

// OBV computes on-balance volume: cumulative volume signed by the close
// direction against the previous bar.
func OBV(bars []model.Bar) (Series, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	out := make(Series, 0, len(bars))
	obv := 0.0
	for i, b := range bars {
		if i > 0 {
			switch {
			case b.Close > bars[i-1].Close:
				obv += b.Volume
			case b.Close < bars[i-1].Close:
				obv -= b.Volume
			}
		}
		out = append(out, Point{Time: b.Time, Value: obv})
	}
	return out, nil
}

// RVOL computes relative volume: each bar's volume divided by the rolling
// average volume of the preceding period bars. A zero baseline yields zero.
func RVOL(bars []model.Bar, period int) (Series, error) {
	if err := checkPeriod("RVOL", period); err != nil {
		return nil, err
	}
	if len(bars) <= period {
		return nil, nil
	}
	out := make(Series, 0, len(bars)-period)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += bars[i].Volume
	}
	for i := period; i < len(bars); i++ {
		avg := sum / float64(period)
		v := 0.0
		if avg > 0 {
			v = bars[i].Volume / avg
		}
		out = append(out, Point{Time: bars[i].Time, Value: v})
		sum += bars[i].Volume - bars[i-period].Volume
	}
	return out, nil
}
