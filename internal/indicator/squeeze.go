package indicator

import "chartengine/internal/model"

// Squeeze flags bars where the Bollinger bands sit fully inside the Keltner
// channel (volatility compression). The emitted value is the width ratio
// (Bollinger width / Keltner width); the flag is on when the ratio is below
// one.
func Squeeze(bars []model.Bar, bbPeriod int, bbMult float64, kcPeriod int, kcMult float64) ([]SqueezePoint, error) {
	bb, err := Bollinger(bars, bbPeriod, bbMult)
	if err != nil {
		return nil, err
	}
	kc, err := Keltner(bars, kcPeriod, kcMult)
	if err != nil {
		return nil, err
	}
	if bb == nil || kc == nil {
		return nil, nil
	}

	// Align the two band series on time; periods may differ.
	kcByTime := make(map[int64]int, len(kc.Middle))
	for i, p := range kc.Middle {
		kcByTime[p.Time] = i
	}

	out := make([]SqueezePoint, 0, len(bb.Middle))
	for i, p := range bb.Middle {
		j, ok := kcByTime[p.Time]
		if !ok {
			continue
		}
		bbWidth := bb.Upper[i].Value - bb.Lower[i].Value
		kcWidth := kc.Upper[j].Value - kc.Lower[j].Value
		ratio := 0.0
		if kcWidth > 0 {
			ratio = bbWidth / kcWidth
		}
		out = append(out, SqueezePoint{Time: p.Time, Value: ratio, On: kcWidth > 0 && bbWidth < kcWidth})
	}
	return out, nil
}
