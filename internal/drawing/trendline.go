package drawing

import "chartengine/internal/model"

// trendline renders a segment between two anchored endpoints.
type trendline struct {
	id             string
	x1, y1, x2, y2 float64
	st             Style
	valid          bool
	selected       bool
	hovered        bool
}

func (t *trendline) ID() string { return t.id }

func (t *trendline) Update(d model.Drawing, p Projection) bool {
	if d.Point1 == nil || d.Point2 == nil {
		t.valid = false
		return false
	}
	x1, y1, ok1 := p.PointXY(*d.Point1)
	x2, y2, ok2 := p.PointXY(*d.Point2)
	t.valid = ok1 && ok2
	if !t.valid {
		return false
	}
	t.x1, t.y1, t.x2, t.y2 = x1, y1, x2, y2
	t.st = styleOf(d)
	return true
}

func (t *trendline) Render(c Canvas) {
	if !t.valid {
		return
	}
	st := emphasized(t.st, t.selected, t.hovered)
	c.Line(t.x1, t.y1, t.x2, t.y2, st)
	if t.selected {
		drawAnchors(c, st, [2]float64{t.x1, t.y1}, [2]float64{t.x2, t.y2})
	}
}

func (t *trendline) HitTest(x, y float64) *Hit {
	if !t.valid {
		return nil
	}
	if dist(x, y, t.x1, t.y1) <= AnchorTolerance {
		return &Hit{ID: t.id, Mode: HitAnchorA}
	}
	if dist(x, y, t.x2, t.y2) <= AnchorTolerance {
		return &Hit{ID: t.id, Mode: HitAnchorB}
	}
	if distToSegment(x, y, t.x1, t.y1, t.x2, t.y2) <= BodyTolerance {
		return &Hit{ID: t.id, Mode: HitBody}
	}
	return nil
}

func (t *trendline) SetEmphasis(selected, hovered bool) {
	t.selected, t.hovered = selected, hovered
}
