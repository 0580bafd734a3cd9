package drawing

import (
	"math"

	"chartengine/internal/model"
)

// Hit tolerances in pixels. A pointer within AnchorTolerance of a declared
// anchor selects anchor-resize; within BodyTolerance of the body, translate.
const (
	AnchorTolerance = 12.0
	BodyTolerance   = 8.0

	// rectOutwardTolerance pads a rectangle's translate-hit bounds.
	rectOutwardTolerance = 4.0

	anchorDotRadius = 4.0
)

// HitMode identifies what part of a drawing the pointer landed on.
type HitMode string

const (
	HitAnchorA HitMode = "anchorA"
	HitAnchorB HitMode = "anchorB"
	HitBody    HitMode = "body"
)

// Hit is a successful hit-test result.
type Hit struct {
	ID   string
	Mode HitMode
}

// Primitive is one renderable, hit-testable annotation instance. Instances
// are keyed by drawing id and re-projected each render pass; none outlives
// its backing record.
type Primitive interface {
	ID() string
	// Update re-projects the primitive from its backing record. Returns
	// false when the drawing cannot currently be placed on screen.
	Update(d model.Drawing, p Projection) bool
	Render(c Canvas)
	HitTest(x, y float64) *Hit
	// SetEmphasis toggles selected/hovered visual state. Emphasis never
	// changes geometry.
	SetEmphasis(selected, hovered bool)
}

// NewPrimitive constructs the primitive for a drawing's type.
func NewPrimitive(d model.Drawing) Primitive {
	switch d.Type {
	case model.DrawingHorizontalLine:
		return &horizontalLine{id: d.ID}
	case model.DrawingTrendline:
		return &trendline{id: d.ID}
	case model.DrawingFibonacci:
		return &fibonacci{id: d.ID}
	case model.DrawingRectangle:
		return &rectangle{id: d.ID}
	default:
		return nil
	}
}

func dist(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// distToSegment returns the perpendicular distance from (px,py) to the
// segment (x1,y1)-(x2,y2), clamped to the segment's extent.
func distToSegment(px, py, x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return dist(px, py, x1, y1)
	}
	t := ((px-x1)*dx + (py-y1)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return dist(px, py, x1+t*dx, y1+t*dy)
}

func styleOf(d model.Drawing) Style {
	return Style{Color: d.Color, LineWidth: float64(d.LineWidth), LineStyle: d.LineStyle}
}

// emphasized widens the stroke for selected/hovered drawings.
func emphasized(st Style, selected, hovered bool) Style {
	if selected || hovered {
		st.LineWidth++
	}
	return st
}

func drawAnchors(c Canvas, st Style, points ...[2]float64) {
	for _, pt := range points {
		c.Circle(pt[0], pt[1], anchorDotRadius, st)
	}
}
