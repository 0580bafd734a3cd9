package model

import "fmt"

// DrawingType tags the concrete variant of a Drawing.
type DrawingType string

const (
	DrawingHorizontalLine DrawingType = "horizontal_line"
	DrawingTrendline      DrawingType = "trendline"
	DrawingFibonacci      DrawingType = "fibonacci"
	DrawingRectangle      DrawingType = "rectangle"
)

// LineStyle selects the stroke pattern of a drawing.
type LineStyle string

const (
	LineSolid  LineStyle = "solid"
	LineDashed LineStyle = "dashed"
	LineDotted LineStyle = "dotted"
)

// FibLevels are the default fibonacci retracement fractions, ordered.
var FibLevels = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// DrawingPoint anchors a drawing in time/price space. Logical is an
// index-space coordinate used only when Time falls outside the loaded bar
// range (future placement); it must be recomputed whenever the series gains
// a new oldest or newest bar.
type DrawingPoint struct {
	Time    int64    `json:"time"`
	Price   float64  `json:"price"`
	Logical *float64 `json:"logical,omitempty"`
}

// Drawing is a persisted chart annotation. The Type tag decides which fields
// are meaningful:
//
//	horizontal_line: Price, Label
//	trendline:       Point1, Point2
//	fibonacci:       Point1, Point2, Levels
//	rectangle:       Point1, Point2, FillColor
//
// Only the fields of §3's data model are serialized; interaction state never
// is.
type Drawing struct {
	ID        string      `json:"id"`
	Type      DrawingType `json:"type"`
	Color     string      `json:"color"`
	LineWidth int         `json:"line_width"`
	LineStyle LineStyle   `json:"line_style"`

	Price float64 `json:"price,omitempty"`
	Label string  `json:"label,omitempty"`

	Point1 *DrawingPoint `json:"point1,omitempty"`
	Point2 *DrawingPoint `json:"point2,omitempty"`

	Levels []float64 `json:"levels,omitempty"`

	FillColor string `json:"fill_color,omitempty"`
}

// Validate checks that the fields required by the drawing's type are present.
func (d Drawing) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("drawing: missing id")
	}
	switch d.Type {
	case DrawingHorizontalLine:
		return nil
	case DrawingTrendline, DrawingRectangle:
		if d.Point1 == nil || d.Point2 == nil {
			return fmt.Errorf("drawing %s: %s requires two points", d.ID, d.Type)
		}
	case DrawingFibonacci:
		if d.Point1 == nil || d.Point2 == nil {
			return fmt.Errorf("drawing %s: fibonacci requires two points", d.ID)
		}
		if len(d.Levels) == 0 {
			return fmt.Errorf("drawing %s: fibonacci requires levels", d.ID)
		}
	default:
		return fmt.Errorf("drawing %s: unknown type %q", d.ID, d.Type)
	}
	return nil
}

// Clone returns a deep copy so callers can hand drawings across goroutines
// without sharing point pointers.
func (d Drawing) Clone() Drawing {
	out := d
	if d.Point1 != nil {
		p := *d.Point1
		out.Point1 = &p
	}
	if d.Point2 != nil {
		p := *d.Point2
		out.Point2 = &p
	}
	if d.Levels != nil {
		out.Levels = append([]float64(nil), d.Levels...)
	}
	return out
}
