// Package pane tracks which indicators are active and which rendering pane
// each one lives in: overlays share the main price pane, oscillators get a
// sub-panel each. Sub-panels follow the main pane's visible time window;
// the reverse direction is never propagated.
package pane

import (
	"sort"
	"sync"

	"chartengine/internal/indicator"
)

// MainPaneID is the fixed identity of the price pane.
const MainPaneID = "main"

// Pane is one vertical rendering region sharing the chart's time axis.
type Pane struct {
	ID   string
	Spec indicator.Spec

	// Visible logical window, mirrored from the main pane.
	VisibleFrom float64
	VisibleTo   float64
}

// Coordinator owns the overlay set and the sub-panel set for one chart.
// Pane identity is derived from the indicator name, so toggling RSI_14 off
// and on yields the same pane ID and renderer state keyed by it never leaks.
type Coordinator struct {
	mu       sync.Mutex
	overlays map[string]indicator.Spec
	panels   map[string]*Pane
	from, to float64

	// OnCreate and OnDestroy fire outside the lock, once per pane
	// lifecycle change, in deterministic (sorted by ID) order.
	OnCreate  func(*Pane)
	OnDestroy func(id string)
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		overlays: make(map[string]indicator.Spec),
		panels:   make(map[string]*Pane),
	}
}

// PaneID returns the pane identity an indicator renders into.
func PaneID(sp indicator.Spec) string {
	if sp.IsOverlay() {
		return MainPaneID
	}
	return "panel:" + sp.Name()
}

// SetIndicators diffs the requested indicator set against the active one,
// creating and destroying sub-panels as needed. Overlays never create panes.
func (c *Coordinator) SetIndicators(specs []indicator.Spec) {
	c.mu.Lock()
	wantOverlay := make(map[string]indicator.Spec)
	wantPanel := make(map[string]indicator.Spec)
	for _, sp := range specs {
		if sp.IsOverlay() {
			wantOverlay[sp.Name()] = sp
		} else {
			wantPanel[PaneID(sp)] = sp
		}
	}

	var created []*Pane
	var destroyed []string
	for id, sp := range wantPanel {
		if _, ok := c.panels[id]; ok {
			continue
		}
		p := &Pane{ID: id, Spec: sp, VisibleFrom: c.from, VisibleTo: c.to}
		c.panels[id] = p
		created = append(created, p)
	}
	for id := range c.panels {
		if _, ok := wantPanel[id]; !ok {
			delete(c.panels, id)
			destroyed = append(destroyed, id)
		}
	}
	c.overlays = wantOverlay
	c.mu.Unlock()

	sort.Slice(created, func(i, j int) bool { return created[i].ID < created[j].ID })
	sort.Strings(destroyed)
	if c.OnCreate != nil {
		for _, p := range created {
			c.OnCreate(p)
		}
	}
	if c.OnDestroy != nil {
		for _, id := range destroyed {
			c.OnDestroy(id)
		}
	}
}

// SyncVisibleRange pushes the main pane's visible window to every sub-panel.
func (c *Coordinator) SyncVisibleRange(from, to float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.from, c.to = from, to
	for _, p := range c.panels {
		p.VisibleFrom, p.VisibleTo = from, to
	}
}

// Overlays returns the active overlay specs, sorted by name.
func (c *Coordinator) Overlays() []indicator.Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]indicator.Spec, 0, len(c.overlays))
	for _, sp := range c.overlays {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Panels returns snapshots of the active sub-panels, sorted by ID.
func (c *Coordinator) Panels() []Pane {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Pane, 0, len(c.panels))
	for _, p := range c.panels {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Panel returns a snapshot of one sub-panel.
func (c *Coordinator) Panel(id string) (Pane, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.panels[id]
	if !ok {
		return Pane{}, false
	}
	return *p, true
}

// Specs returns every active indicator (overlays and panels), sorted by
// name, in the shape the computation engine consumes.
func (c *Coordinator) Specs() []indicator.Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]indicator.Spec, 0, len(c.overlays)+len(c.panels))
	for _, sp := range c.overlays {
		out = append(out, sp)
	}
	for _, p := range c.panels {
		out = append(out, p.Spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
