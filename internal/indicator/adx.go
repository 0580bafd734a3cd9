package indicator

import "chartengine/internal/model"

// ADX computes the average directional index plus the +DI/−DI lines using
// Wilder's smoothing of true range and directional movement. DI lines start
// at the period-th bar; ADX itself needs a further period of DX values.
func ADX(bars []model.Bar, period int) (*ADXSeries, error) {
	if err := checkPeriod("ADX", period); err != nil {
		return nil, err
	}
	if len(bars) <= 2*period {
		return nil, nil
	}

	n := len(bars)
	trs := trueRanges(bars)[1:]
	plusDM := make([]float64, n-1)
	minusDM := make([]float64, n-1)
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
	}

	smTR := wilderValues(trs, period)
	smPlus := wilderValues(plusDM, period)
	smMinus := wilderValues(minusDM, period)

	res := &ADXSeries{}
	dx := make([]float64, 0, n-period)
	dxTimes := make([]int64, 0, n-period)
	for i := period - 1; i < n-1; i++ {
		t := bars[i+1].Time
		var plusDI, minusDI float64
		if smTR[i] > 0 {
			plusDI = 100 * smPlus[i] / smTR[i]
			minusDI = 100 * smMinus[i] / smTR[i]
		}
		res.PlusDI = append(res.PlusDI, Point{Time: t, Value: plusDI})
		res.MinusDI = append(res.MinusDI, Point{Time: t, Value: minusDI})

		sum := plusDI + minusDI
		v := 0.0
		if sum > 0 {
			diff := plusDI - minusDI
			if diff < 0 {
				diff = -diff
			}
			v = 100 * diff / sum
		}
		dx = append(dx, v)
		dxTimes = append(dxTimes, t)
	}

	adxVals := wilderValues(dx, period)
	for i := period - 1; i < len(adxVals); i++ {
		res.ADX = append(res.ADX, Point{Time: dxTimes[i], Value: adxVals[i]})
	}
	return res, nil
}
