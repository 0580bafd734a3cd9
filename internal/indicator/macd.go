package indicator

import "chartengine/internal/model"

// MACD defaults.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// MACD computes EMA(fast) − EMA(slow), a signal EMA over that difference,
// and the histogram (macd − signal). Output starts where the signal line
// becomes defined.
func MACD(bars []model.Bar, fast, slow, signal int) (*MACDSeries, error) {
	if err := checkPeriod("MACD", fast); err != nil {
		return nil, err
	}
	if err := checkPeriod("MACD", slow); err != nil {
		return nil, err
	}
	if err := checkPeriod("MACD", signal); err != nil {
		return nil, err
	}
	if len(bars) < slow+signal-1 {
		return nil, nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	fastEMA := emaValues(closes, fast)
	slowEMA := emaValues(closes, slow)

	// macd line is defined from the slow seed onwards.
	macdVals := make([]float64, 0, len(bars)-slow+1)
	for i := slow - 1; i < len(bars); i++ {
		macdVals = append(macdVals, fastEMA[i]-slowEMA[i])
	}
	signalVals := emaValues(macdVals, signal)

	res := &MACDSeries{}
	for j := signal - 1; j < len(macdVals); j++ {
		t := bars[slow-1+j].Time
		m := macdVals[j]
		s := signalVals[j]
		res.MACD = append(res.MACD, Point{Time: t, Value: m})
		res.Signal = append(res.Signal, Point{Time: t, Value: s})
		res.Histogram = append(res.Histogram, Point{Time: t, Value: m - s})
	}
	return res, nil
}
