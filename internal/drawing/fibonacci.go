package drawing

import (
	"fmt"
	"math"

	"chartengine/internal/model"
)

const fibBandOpacity = 0.12

// fibonacci renders horizontal retracement guide lines between the two
// anchor prices, with filled bands between consecutive levels.
type fibonacci struct {
	id             string
	x1, y1, x2, y2 float64
	levels         []float64
	levelYs        []float64
	levelPrices    []float64
	st             Style
	valid          bool
	selected       bool
	hovered        bool
}

func (f *fibonacci) ID() string { return f.id }

// LevelPrice computes the retracement price for one level fraction.
func LevelPrice(p1, p2, level float64) float64 {
	return p1 + (p2-p1)*level
}

func (f *fibonacci) Update(d model.Drawing, p Projection) bool {
	if d.Point1 == nil || d.Point2 == nil || len(d.Levels) == 0 {
		f.valid = false
		return false
	}
	x1, y1, ok1 := p.PointXY(*d.Point1)
	x2, y2, ok2 := p.PointXY(*d.Point2)
	f.valid = ok1 && ok2
	if !f.valid {
		return false
	}
	f.x1, f.y1, f.x2, f.y2 = x1, y1, x2, y2
	f.levels = d.Levels
	f.levelYs = f.levelYs[:0]
	f.levelPrices = f.levelPrices[:0]
	for _, lv := range d.Levels {
		price := LevelPrice(d.Point1.Price, d.Point2.Price, lv)
		y, ok := p.Prices.PriceToY(price)
		if !ok {
			f.valid = false
			return false
		}
		f.levelYs = append(f.levelYs, y)
		f.levelPrices = append(f.levelPrices, price)
	}
	f.st = styleOf(d)
	return true
}

func (f *fibonacci) Render(c Canvas) {
	if !f.valid {
		return
	}
	st := emphasized(f.st, f.selected, f.hovered)
	left, right := math.Min(f.x1, f.x2), math.Max(f.x1, f.x2)
	for i, y := range f.levelYs {
		c.Line(left, y, right, y, st)
		c.Text(right+4, y, fmt.Sprintf("%.3f (%.2f)", f.levels[i], f.levelPrices[i]), st)
		if i > 0 {
			c.FillRect(left, f.levelYs[i-1], right, y, st.Color, fibBandOpacity)
		}
	}
	if f.selected {
		drawAnchors(c, st, [2]float64{f.x1, f.y1}, [2]float64{f.x2, f.y2})
	}
}

func (f *fibonacci) HitTest(x, y float64) *Hit {
	if !f.valid {
		return nil
	}
	if dist(x, y, f.x1, f.y1) <= AnchorTolerance {
		return &Hit{ID: f.id, Mode: HitAnchorA}
	}
	if dist(x, y, f.x2, f.y2) <= AnchorTolerance {
		return &Hit{ID: f.id, Mode: HitAnchorB}
	}
	// Inside the overall band bounding box counts as a translate hit.
	left, right := math.Min(f.x1, f.x2), math.Max(f.x1, f.x2)
	top, bottom := math.Inf(1), math.Inf(-1)
	for _, ly := range f.levelYs {
		top = math.Min(top, ly)
		bottom = math.Max(bottom, ly)
	}
	if x >= left && x <= right && y >= top && y <= bottom {
		return &Hit{ID: f.id, Mode: HitBody}
	}
	return nil
}

func (f *fibonacci) SetEmphasis(selected, hovered bool) {
	f.selected, f.hovered = selected, hovered
}
