package drawing

import (
	"math"

	"chartengine/internal/model"
)

const rectFillOpacity = 0.2

// rectangle renders a filled, stroked box spanning the two mapped corners.
type rectangle struct {
	id             string
	x1, y1, x2, y2 float64
	fillColor      string
	st             Style
	valid          bool
	selected       bool
	hovered        bool
}

func (r *rectangle) ID() string { return r.id }

func (r *rectangle) Update(d model.Drawing, p Projection) bool {
	if d.Point1 == nil || d.Point2 == nil {
		r.valid = false
		return false
	}
	x1, y1, ok1 := p.PointXY(*d.Point1)
	x2, y2, ok2 := p.PointXY(*d.Point2)
	r.valid = ok1 && ok2
	if !r.valid {
		return false
	}
	r.x1, r.y1, r.x2, r.y2 = x1, y1, x2, y2
	r.fillColor = d.FillColor
	r.st = styleOf(d)
	return true
}

func (r *rectangle) Render(c Canvas) {
	if !r.valid {
		return
	}
	st := emphasized(r.st, r.selected, r.hovered)
	left, right := math.Min(r.x1, r.x2), math.Max(r.x1, r.x2)
	top, bottom := math.Min(r.y1, r.y2), math.Max(r.y1, r.y2)
	fill := r.fillColor
	if fill == "" {
		fill = st.Color
	}
	c.FillRect(left, top, right, bottom, fill, rectFillOpacity)
	c.Rect(left, top, right, bottom, st)
	if r.selected {
		drawAnchors(c, st, [2]float64{r.x1, r.y1}, [2]float64{r.x2, r.y2})
	}
}

func (r *rectangle) HitTest(x, y float64) *Hit {
	if !r.valid {
		return nil
	}
	if dist(x, y, r.x1, r.y1) <= AnchorTolerance {
		return &Hit{ID: r.id, Mode: HitAnchorA}
	}
	if dist(x, y, r.x2, r.y2) <= AnchorTolerance {
		return &Hit{ID: r.id, Mode: HitAnchorB}
	}
	left, right := math.Min(r.x1, r.x2), math.Max(r.x1, r.x2)
	top, bottom := math.Min(r.y1, r.y2), math.Max(r.y1, r.y2)
	if x >= left-rectOutwardTolerance && x <= right+rectOutwardTolerance &&
		y >= top-rectOutwardTolerance && y <= bottom+rectOutwardTolerance {
		return &Hit{ID: r.id, Mode: HitBody}
	}
	return nil
}

func (r *rectangle) SetEmphasis(selected, hovered bool) {
	r.selected, r.hovered = selected, hovered
}
