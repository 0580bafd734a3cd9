package drawing

import (
	"encoding/json"
	"sync"

	"chartengine/internal/model"
)

// Collection is the per-ticker set of persisted drawings in draw order.
// Draw order implies hit-test order. All accessors copy, so callers never
// hold references into the collection's own records.
type Collection struct {
	ticker string

	mu    sync.RWMutex
	order []string
	byID  map[string]model.Drawing
}

// NewCollection creates an empty per-ticker collection.
func NewCollection(ticker string) *Collection {
	return &Collection{ticker: ticker, byID: make(map[string]model.Drawing)}
}

// Ticker returns the owning ticker.
func (c *Collection) Ticker() string { return c.ticker }

// Add appends a drawing. An id collision overwrites in place, keeping draw
// order stable.
func (c *Collection) Add(d model.Drawing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[d.ID]; !exists {
		c.order = append(c.order, d.ID)
	}
	c.byID[d.ID] = d.Clone()
}

// Update replaces an existing drawing in place. Unknown ids are ignored.
func (c *Collection) Update(d model.Drawing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[d.ID]; exists {
		c.byID[d.ID] = d.Clone()
	}
}

// Remove deletes a drawing. Removal of a non-existent id is a no-op.
func (c *Collection) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[id]; !exists {
		return
	}
	delete(c.byID, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Clear removes all drawings.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.byID = make(map[string]model.Drawing)
}

// Get returns a copy of one drawing.
func (c *Collection) Get(id string) (model.Drawing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	if !ok {
		return model.Drawing{}, false
	}
	return d.Clone(), true
}

// All returns copies of all drawings in draw order.
func (c *Collection) All() []model.Drawing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Drawing, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Clone())
	}
	return out
}

// Len returns the number of drawings.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// MarshalJSON serializes the collection as a plain drawing array, matching
// the persistence shape exactly (no interaction state).
func (c *Collection) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.All())
}

// Replace swaps in a persisted drawing set, e.g. on ticker switch.
func (c *Collection) Replace(drawings []model.Drawing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = c.order[:0]
	c.byID = make(map[string]model.Drawing, len(drawings))
	for _, d := range drawings {
		if d.Validate() != nil {
			continue
		}
		if _, exists := c.byID[d.ID]; !exists {
			c.order = append(c.order, d.ID)
		}
		c.byID[d.ID] = d.Clone()
	}
}
