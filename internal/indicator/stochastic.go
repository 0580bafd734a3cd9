package indicator

import "chartengine/internal/model"

// Stochastic defaults.
const (
	StochKPeriod = 14
	StochDPeriod = 3
)

// Stochastic computes the %K/%D oscillator: %K = 100 × (close − lowestLow) /
// (highestHigh − lowestLow) over kPeriod bars, %D = SMA(dPeriod) of %K. A
// flat window (high == low) carries %K of 50.
func Stochastic(bars []model.Bar, kPeriod, dPeriod int) (*StochSeries, error) {
	if err := checkPeriod("Stochastic", kPeriod); err != nil {
		return nil, err
	}
	if err := checkPeriod("Stochastic", dPeriod); err != nil {
		return nil, err
	}
	if len(bars) < kPeriod+dPeriod-1 {
		return nil, nil
	}

	k := make(Series, 0, len(bars)-kPeriod+1)
	for i := kPeriod - 1; i < len(bars); i++ {
		lo, hi := bars[i-kPeriod+1].Low, bars[i-kPeriod+1].High
		for j := i - kPeriod + 2; j <= i; j++ {
			if bars[j].Low < lo {
				lo = bars[j].Low
			}
			if bars[j].High > hi {
				hi = bars[j].High
			}
		}
		v := 50.0
		if hi > lo {
			v = 100 * (bars[i].Close - lo) / (hi - lo)
		}
		k = append(k, Point{Time: bars[i].Time, Value: v})
	}

	d := make(Series, 0, len(k)-dPeriod+1)
	sum := 0.0
	for i, p := range k {
		sum += p.Value
		if i >= dPeriod {
			sum -= k[i-dPeriod].Value
		}
		if i >= dPeriod-1 {
			d = append(d, Point{Time: p.Time, Value: sum / float64(dPeriod)})
		}
	}
	return &StochSeries{K: k, D: d}, nil
}
