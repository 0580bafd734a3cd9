package drawing

import "chartengine/internal/model"

// Renderer owns the id-indexed primitive instances for one pane. Each render
// pass diffs the current drawing set against the previous one: new records
// create primitives, surviving records re-project, vanished records destroy
// their instance. No primitive outlives its backing record.
type Renderer struct {
	prims    map[string]Primitive
	order    []string
	selected string
	hovered  string
}

// NewRenderer creates an empty renderer.
func NewRenderer() *Renderer {
	return &Renderer{prims: make(map[string]Primitive)}
}

// SetEmphasis records the selected and hovered drawing ids.
func (r *Renderer) SetEmphasis(selected, hovered string) {
	r.selected, r.hovered = selected, hovered
}

// Sync reconciles primitive instances with the drawing set and re-projects
// them for the current view.
func (r *Renderer) Sync(drawings []model.Drawing, p Projection) {
	seen := make(map[string]bool, len(drawings))
	r.order = r.order[:0]
	for _, d := range drawings {
		seen[d.ID] = true
		prim, ok := r.prims[d.ID]
		if !ok {
			prim = NewPrimitive(d)
			if prim == nil {
				continue
			}
			r.prims[d.ID] = prim
		}
		prim.Update(d, p)
		prim.SetEmphasis(d.ID == r.selected, d.ID == r.hovered)
		r.order = append(r.order, d.ID)
	}
	for id := range r.prims {
		if !seen[id] {
			delete(r.prims, id)
		}
	}
}

// Render draws all primitives in draw order.
func (r *Renderer) Render(c Canvas) {
	for _, id := range r.order {
		r.prims[id].Render(c)
	}
}

// HitTest walks primitives in draw order and returns the first hit. Within a
// primitive, anchors take precedence over the body; across primitives, draw
// order implies test order.
func (r *Renderer) HitTest(x, y float64) *Hit {
	for _, id := range r.order {
		if h := r.prims[id].HitTest(x, y); h != nil {
			return h
		}
	}
	return nil
}

// Len returns the number of live primitive instances.
func (r *Renderer) Len() int { return len(r.prims) }
