package drawing

import (
	"chartengine/internal/coord"
	"chartengine/internal/model"
)

// Projection maps drawing points between time/price space and the screen for
// the current render pass. It wraps the live coordinate mapper and price
// scale and is rebuilt on every pointer event.
type Projection struct {
	Mapper *coord.Mapper
	Prices coord.PriceScale
}

// PointXY projects a drawing point to screen coordinates. Points whose time
// falls outside the loaded range fall back to their index-space coordinate.
func (p Projection) PointXY(pt model.DrawingPoint) (x, y float64, ok bool) {
	y, ok = p.Prices.PriceToY(pt.Price)
	if !ok {
		return 0, 0, false
	}
	x, ok = p.Mapper.TimeToPixelX(pt.Time)
	if !ok && pt.Logical != nil {
		x, ok = p.Mapper.LogicalToPixelX(*pt.Logical)
	}
	if !ok {
		return 0, 0, false
	}
	return x, y, true
}

// PointAt derives a drawing point from screen coordinates. When the time
// lands outside the loaded bar range the point also records its logical
// index so it can be re-anchored after the range changes shape.
func (p Projection) PointAt(x, y float64) (model.DrawingPoint, bool) {
	price, ok := p.Prices.YToPrice(y)
	if !ok {
		return model.DrawingPoint{}, false
	}
	t, ok := p.Mapper.PixelToTime(x)
	if !ok {
		return model.DrawingPoint{}, false
	}
	pt := model.DrawingPoint{Time: t, Price: price}
	if _, last, ok := p.Mapper.TimeRange(); ok && t > last {
		if lg, ok := p.Mapper.LogicalForTime(t); ok {
			pt.Logical = &lg
		}
	}
	return pt, true
}

// RefreshLogical recomputes the logical coordinate of every out-of-range
// point in the collection. Must run whenever the series gains a new oldest
// or newest bar, since index space shifts under the drawings.
func RefreshLogical(col *Collection, m *coord.Mapper) {
	_, last, ok := m.TimeRange()
	if !ok {
		return
	}
	for _, d := range col.All() {
		changed := false
		for _, pt := range []*model.DrawingPoint{d.Point1, d.Point2} {
			if pt == nil {
				continue
			}
			if pt.Time > last {
				if lg, ok := m.LogicalForTime(pt.Time); ok {
					pt.Logical = &lg
					changed = true
				}
			} else if pt.Logical != nil {
				pt.Logical = nil
				changed = true
			}
		}
		if changed {
			col.Update(d)
		}
	}
}
