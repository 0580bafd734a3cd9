package drawing

import (
	"math"

	"chartengine/internal/model"
)

// horizontalLine renders an infinite horizontal segment at the drawing's
// price level. Single-point type: no anchors, translate moves price only.
type horizontalLine struct {
	id       string
	y        float64
	label    string
	st       Style
	valid    bool
	selected bool
	hovered  bool
}

func (h *horizontalLine) ID() string { return h.id }

func (h *horizontalLine) Update(d model.Drawing, p Projection) bool {
	y, ok := p.Prices.PriceToY(d.Price)
	h.valid = ok
	if !ok {
		return false
	}
	h.y = y
	h.label = d.Label
	h.st = styleOf(d)
	return true
}

func (h *horizontalLine) Render(c Canvas) {
	if !h.valid {
		return
	}
	st := emphasized(h.st, h.selected, h.hovered)
	c.Line(0, h.y, c.Width(), h.y, st)
	if h.label != "" {
		c.Text(4, h.y-4, h.label, st)
	}
}

func (h *horizontalLine) HitTest(x, y float64) *Hit {
	if !h.valid {
		return nil
	}
	if math.Abs(y-h.y) < BodyTolerance {
		return &Hit{ID: h.id, Mode: HitBody}
	}
	return nil
}

func (h *horizontalLine) SetEmphasis(selected, hovered bool) {
	h.selected, h.hovered = selected, hovered
}
