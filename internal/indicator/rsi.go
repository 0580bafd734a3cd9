package indicator

import "chartengine/internal/model"

// RSI computes the Relative Strength Index using Wilder's smoothing: the
// initial averages are an SMA over the first period deltas, then
// avg = (prevAvg*(period-1) + current) / period. When avgLoss is zero the
// value saturates at 100. The first value lands at the period-th bar.
func RSI(bars []model.Bar, period int) (Series, error) {
	if err := checkPeriod("RSI", period); err != nil {
		return nil, err
	}
	if len(bars) <= period {
		return nil, nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make(Series, 0, len(bars)-period)
	out = append(out, Point{Time: bars[period].Time, Value: rsiValue(avgGain, avgLoss)})

	p := float64(period)
	for i := period + 1; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, Point{Time: bars[i].Time, Value: rsiValue(avgGain, avgLoss)})
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
