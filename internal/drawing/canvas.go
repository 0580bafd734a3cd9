// Package drawing holds the persisted chart annotations, the interaction
// state machine that mutates them, and the per-type primitives that render
// and hit-test them against an abstract canvas.
package drawing

import "chartengine/internal/model"

// Style carries the visual attributes handed to the canvas.
type Style struct {
	Color     string
	LineWidth float64
	LineStyle model.LineStyle
}

// Canvas is the rendering surface primitives draw onto. Implementations
// translate these calls into actual 2D drawing commands; tests record them.
type Canvas interface {
	Line(x1, y1, x2, y2 float64, st Style)
	Rect(x1, y1, x2, y2 float64, st Style)
	FillRect(x1, y1, x2, y2 float64, color string, opacity float64)
	Circle(x, y, r float64, st Style)
	Text(x, y float64, s string, st Style)
	Width() float64
	Height() float64
}
