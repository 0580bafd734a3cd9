package pane

import (
	"testing"

	"chartengine/internal/indicator"
)

func TestOverlaysNeverCreatePanes(t *testing.T) {
	c := NewCoordinator()
	c.SetIndicators([]indicator.Spec{
		{Type: indicator.TypeSMA, Period: 20},
		{Type: indicator.TypeBollinger, Period: 20},
		{Type: indicator.TypeVWAP},
	})
	if n := len(c.Panels()); n != 0 {
		t.Fatalf("expected 0 panels, got %d", n)
	}
	if n := len(c.Overlays()); n != 3 {
		t.Fatalf("expected 3 overlays, got %d", n)
	}
}

func TestPanelLifecycleDiff(t *testing.T) {
	c := NewCoordinator()
	var created, destroyed []string
	c.OnCreate = func(p *Pane) { created = append(created, p.ID) }
	c.OnDestroy = func(id string) { destroyed = append(destroyed, id) }

	c.SetIndicators([]indicator.Spec{
		{Type: indicator.TypeRSI, Period: 14},
		{Type: indicator.TypeMACD},
	})
	if len(created) != 2 || len(destroyed) != 0 {
		t.Fatalf("created=%v destroyed=%v", created, destroyed)
	}

	// Re-applying the same set must not churn panes.
	created, destroyed = nil, nil
	c.SetIndicators([]indicator.Spec{
		{Type: indicator.TypeRSI, Period: 14},
		{Type: indicator.TypeMACD},
	})
	if len(created) != 0 || len(destroyed) != 0 {
		t.Fatalf("idempotent set churned panes: created=%v destroyed=%v", created, destroyed)
	}

	// Dropping MACD destroys only its pane.
	c.SetIndicators([]indicator.Spec{{Type: indicator.TypeRSI, Period: 14}})
	if len(destroyed) != 1 || destroyed[0] != "panel:MACD" {
		t.Fatalf("destroyed=%v", destroyed)
	}
	if _, ok := c.Panel("panel:RSI_14"); !ok {
		t.Error("RSI panel should survive")
	}
}

func TestPaneIdentityStableAcrossToggles(t *testing.T) {
	c := NewCoordinator()
	rsi := []indicator.Spec{{Type: indicator.TypeRSI, Period: 14}}

	c.SetIndicators(rsi)
	first, _ := c.Panel("panel:RSI_14")
	c.SetIndicators(nil)
	c.SetIndicators(rsi)
	second, ok := c.Panel("panel:RSI_14")
	if !ok {
		t.Fatal("pane missing after re-toggle")
	}
	if first.ID != second.ID {
		t.Errorf("pane identity changed across toggles: %q vs %q", first.ID, second.ID)
	}
}

func TestVisibleRangeFlowsMainToPanels(t *testing.T) {
	c := NewCoordinator()
	c.SetIndicators([]indicator.Spec{
		{Type: indicator.TypeRSI, Period: 14},
		{Type: indicator.TypeStochastic, Period: 14},
	})

	c.SyncVisibleRange(120, 480)
	for _, p := range c.Panels() {
		if p.VisibleFrom != 120 || p.VisibleTo != 480 {
			t.Errorf("panel %s window = [%f, %f]", p.ID, p.VisibleFrom, p.VisibleTo)
		}
	}

	// A pane created after a sync inherits the current window.
	c.SetIndicators([]indicator.Spec{
		{Type: indicator.TypeRSI, Period: 14},
		{Type: indicator.TypeStochastic, Period: 14},
		{Type: indicator.TypeADX, Period: 14},
	})
	adx, _ := c.Panel("panel:ADX_14")
	if adx.VisibleFrom != 120 || adx.VisibleTo != 480 {
		t.Errorf("new panel window = [%f, %f]", adx.VisibleFrom, adx.VisibleTo)
	}
}

func TestSpecsCoversOverlaysAndPanels(t *testing.T) {
	c := NewCoordinator()
	c.SetIndicators([]indicator.Spec{
		{Type: indicator.TypeEMA, Period: 9},
		{Type: indicator.TypeRSI, Period: 14},
	})
	specs := c.Specs()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].Name() != "EMA_9" || specs[1].Name() != "RSI_14" {
		t.Errorf("specs = %v", specs)
	}
}
