package drawing

import (
	"math"

	"github.com/google/uuid"

	"chartengine/internal/model"
)

// State is the interaction state of the chart surface.
type State int

const (
	StateIdle State = iota
	StatePlacing
	StateDragging
)

// Tool selects which drawing type a placement gesture creates.
type Tool string

const (
	ToolNone           Tool = ""
	ToolHorizontalLine Tool = "horizontal_line"
	ToolTrendline      Tool = "trendline"
	ToolFibonacci      Tool = "fibonacci"
	ToolRectangle      Tool = "rectangle"
)

// dblClickRangeFactor scales the local bar range into the price tolerance
// for the horizontal-line double-click edit affordance.
const dblClickRangeFactor = 1.5

// Defaults are the visual attributes applied to newly created drawings.
type Defaults struct {
	Color     string
	LineWidth int
	LineStyle model.LineStyle
	FillColor string
	FibLevels []float64
}

// StandardDefaults returns the stock style for new drawings.
func StandardDefaults() Defaults {
	return Defaults{
		Color:     "#2962ff",
		LineWidth: 1,
		LineStyle: model.LineSolid,
		FillColor: "#2962ff22",
	}
}

// Frame is the per-event view snapshot handed to the machine at dispatch
// time. Passing it explicitly (rather than capturing it at registration)
// keeps event handlers free of stale closure state.
type Frame struct {
	Proj     Projection
	Renderer *Renderer
	// LocalBarRange is the average high-low span of the visible bars,
	// used for the double-click price tolerance.
	LocalBarRange float64
}

type dragState struct {
	id         string
	mode       HitMode
	orig       model.Drawing
	lastX      float64
	lastY      float64
}

// Machine is the drawing interaction state machine. Single-threaded by
// contract: all events arrive on the interaction goroutine.
type Machine struct {
	col      *Collection
	defaults Defaults

	state     State
	tool      Tool
	point1    *model.DrawingPoint
	tentative *model.DrawingPoint
	selected  string
	hovered   string
	drag      dragState

	// OnCommit, if set, fires after a completed mutation (placement, drag
	// commit, delete, clear) so the owner can persist the collection.
	OnCommit func()

	newID func() string
}

// NewMachine creates a machine over a per-ticker collection.
func NewMachine(col *Collection, defaults Defaults) *Machine {
	if len(defaults.FibLevels) == 0 {
		defaults.FibLevels = model.FibLevels
	}
	return &Machine{col: col, defaults: defaults, newID: uuid.NewString}
}

// State returns the current interaction state.
func (m *Machine) State() State { return m.state }

// Tool returns the active placement tool.
func (m *Machine) Tool() Tool { return m.tool }

// Selected returns the selected drawing id, if any.
func (m *Machine) Selected() string { return m.selected }

// Hovered returns the hovered drawing id, if any.
func (m *Machine) Hovered() string { return m.hovered }

// Tentative returns the pending preview point while placing.
func (m *Machine) Tentative() *model.DrawingPoint { return m.tentative }

// ScrollZoomEnabled reports whether the chart may handle scroll/zoom
// gestures. Dragging holds an exclusive lock on the pointer stream.
func (m *Machine) ScrollZoomEnabled() bool { return m.state != StateDragging }

// SelectTool arms a placement tool. ToolNone returns to idle.
func (m *Machine) SelectTool(tool Tool) {
	m.point1 = nil
	m.tentative = nil
	m.tool = tool
	if tool == ToolNone {
		m.state = StateIdle
		return
	}
	m.state = StatePlacing
}

// Escape discards any pending placement and returns to idle with nothing
// selected.
func (m *Machine) Escape() {
	m.tool = ToolNone
	m.point1 = nil
	m.tentative = nil
	m.state = StateIdle
	m.selected = ""
}

// PointerDown handles a primary-button press.
func (m *Machine) PointerDown(x, y float64, fr Frame) {
	switch m.state {
	case StatePlacing:
		m.placeAt(x, y, fr)
	case StateIdle:
		hit := fr.Renderer.HitTest(x, y)
		if hit == nil {
			m.selected = ""
			return
		}
		orig, ok := m.col.Get(hit.ID)
		if !ok {
			return
		}
		m.selected = hit.ID
		m.drag = dragState{id: hit.ID, mode: hit.Mode, orig: orig, lastX: x, lastY: y}
		m.state = StateDragging
	}
}

// placeAt captures a placement click. A mapping failure aborts the click
// without mutating anything.
func (m *Machine) placeAt(x, y float64, fr Frame) {
	pt, ok := fr.Proj.PointAt(x, y)
	if !ok {
		return
	}

	if m.tool == ToolHorizontalLine {
		d := m.newDrawing(model.DrawingHorizontalLine)
		d.Price = pt.Price
		m.finishPlacement(d)
		return
	}

	if m.point1 == nil {
		p := pt
		m.point1 = &p
		m.tentative = &p
		return
	}

	var d model.Drawing
	switch m.tool {
	case ToolTrendline:
		d = m.newDrawing(model.DrawingTrendline)
	case ToolFibonacci:
		d = m.newDrawing(model.DrawingFibonacci)
		d.Levels = append([]float64(nil), m.defaults.FibLevels...)
	case ToolRectangle:
		d = m.newDrawing(model.DrawingRectangle)
		d.FillColor = m.defaults.FillColor
	default:
		m.Escape()
		return
	}
	p1, p2 := *m.point1, pt
	d.Point1, d.Point2 = &p1, &p2
	m.finishPlacement(d)
}

func (m *Machine) finishPlacement(d model.Drawing) {
	m.col.Add(d)
	m.tool = ToolNone
	m.point1 = nil
	m.tentative = nil
	m.state = StateIdle
	m.selected = d.ID
	m.commit()
}

// PointerMove handles pointer motion.
func (m *Machine) PointerMove(x, y float64, fr Frame) {
	switch m.state {
	case StatePlacing:
		if m.point1 != nil {
			if pt, ok := fr.Proj.PointAt(x, y); ok {
				m.tentative = &pt
			}
		}
	case StateIdle:
		if hit := fr.Renderer.HitTest(x, y); hit != nil {
			m.hovered = hit.ID
		} else {
			m.hovered = ""
		}
	case StateDragging:
		m.applyDrag(x, y, fr)
	}
}

// applyDrag mutates the dragged drawing in place. Any coordinate that fails
// to resolve aborts the whole gesture: the original record is restored and
// no partial mutation survives.
func (m *Machine) applyDrag(x, y float64, fr Frame) {
	d, ok := m.col.Get(m.drag.id)
	if !ok {
		m.state = StateIdle
		return
	}
	dx, dy := x-m.drag.lastX, y-m.drag.lastY

	switch m.drag.mode {
	case HitBody:
		if !m.translate(&d, dx, dy, fr) {
			m.abortDrag()
			return
		}
	case HitAnchorA, HitAnchorB:
		pt, ok := fr.Proj.PointAt(x, y)
		if !ok {
			m.abortDrag()
			return
		}
		if m.drag.mode == HitAnchorA {
			d.Point1 = &pt
		} else {
			d.Point2 = &pt
		}
	}

	m.col.Update(d)
	m.drag.lastX, m.drag.lastY = x, y
}

// translate shifts a drawing by a pixel delta. Horizontal lines move price
// only; two-point drawings move both endpoints by the same delta.
func (m *Machine) translate(d *model.Drawing, dx, dy float64, fr Frame) bool {
	if d.Type == model.DrawingHorizontalLine {
		y0, ok := fr.Proj.Prices.PriceToY(d.Price)
		if !ok {
			return false
		}
		price, ok := fr.Proj.Prices.YToPrice(y0 + dy)
		if !ok {
			return false
		}
		d.Price = price
		return true
	}

	moved := make([]model.DrawingPoint, 0, 2)
	for _, pt := range []*model.DrawingPoint{d.Point1, d.Point2} {
		if pt == nil {
			return false
		}
		px, py, ok := fr.Proj.PointXY(*pt)
		if !ok {
			return false
		}
		np, ok := fr.Proj.PointAt(px+dx, py+dy)
		if !ok {
			return false
		}
		moved = append(moved, np)
	}
	d.Point1, d.Point2 = &moved[0], &moved[1]
	return true
}

func (m *Machine) abortDrag() {
	m.col.Update(m.drag.orig)
	m.state = StateIdle
}

// PointerUp commits a drag and returns to idle with the same selection.
func (m *Machine) PointerUp(x, y float64, fr Frame) {
	if m.state != StateDragging {
		return
	}
	m.state = StateIdle
	m.selected = m.drag.id
	m.commit()
}

// DoubleClick returns the horizontal line whose price lies within the edit
// tolerance of the click, if any, for the caller to open an edit affordance.
// Tool state is never changed.
func (m *Machine) DoubleClick(x, y float64, fr Frame) *model.Drawing {
	price, ok := fr.Proj.Prices.YToPrice(y)
	if !ok {
		return nil
	}
	tol := fr.LocalBarRange * dblClickRangeFactor
	for _, d := range m.col.All() {
		if d.Type != model.DrawingHorizontalLine {
			continue
		}
		if math.Abs(d.Price-price) <= tol {
			found := d
			return &found
		}
	}
	return nil
}

// Delete removes a drawing; removal of a non-existent id is a no-op.
func (m *Machine) Delete(id string) {
	had := m.col.Len()
	m.col.Remove(id)
	if m.selected == id {
		m.selected = ""
	}
	if m.col.Len() != had {
		m.commit()
	}
}

// DeleteSelected removes the selected drawing, if any.
func (m *Machine) DeleteSelected() {
	if m.selected != "" {
		m.Delete(m.selected)
	}
}

// ClearAll removes every drawing for the ticker.
func (m *Machine) ClearAll() {
	m.col.Clear()
	m.selected = ""
	m.hovered = ""
	m.commit()
}

// UpdateStyle applies color/width edits from the edit affordance.
func (m *Machine) UpdateStyle(id, color string, lineWidth int) {
	d, ok := m.col.Get(id)
	if !ok {
		return
	}
	if color != "" {
		d.Color = color
	}
	if lineWidth > 0 {
		d.LineWidth = lineWidth
	}
	m.col.Update(d)
	m.commit()
}

func (m *Machine) newDrawing(t model.DrawingType) model.Drawing {
	return model.Drawing{
		ID:        m.newID(),
		Type:      t,
		Color:     m.defaults.Color,
		LineWidth: m.defaults.LineWidth,
		LineStyle: m.defaults.LineStyle,
	}
}

func (m *Machine) commit() {
	if m.OnCommit != nil {
		m.OnCommit()
	}
}
