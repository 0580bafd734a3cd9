package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"chartengine/internal/coord"
	"chartengine/internal/drawing"
	"chartengine/internal/indicator"
	"chartengine/internal/model"
	"chartengine/internal/pane"
	"chartengine/internal/series"
)

// Event is one client→server message. Internal events (feed bars, engine
// results, load completions) reuse the same queue so the session stays
// strictly single-threaded.
type Event struct {
	Type string `json:"type"`

	// set_symbol
	Ticker   string `json:"ticker,omitempty"`
	Interval string `json:"interval,omitempty"`

	// view
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
	PriceTop    float64 `json:"priceTop,omitempty"`
	PriceBottom float64 `json:"priceBottom,omitempty"`
	ViewFrom    float64 `json:"viewFrom,omitempty"`
	BarSpacing  float64 `json:"barSpacing,omitempty"`
	VisibleFrom float64 `json:"visibleFrom,omitempty"`
	VisibleTo   float64 `json:"visibleTo,omitempty"`

	// pointer_down / pointer_move / pointer_up / double_click
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`

	// select_tool / key
	Tool string `json:"tool,omitempty"`
	Key  string `json:"key,omitempty"`

	// delete_drawing / update_style
	ID        string `json:"id,omitempty"`
	Color     string `json:"color,omitempty"`
	LineWidth int    `json:"lineWidth,omitempty"`

	// set_indicators
	Specs []indicator.Spec `json:"specs,omitempty"`

	// internal
	bar    *model.BarUpdate
	result *indicator.BatchResult
	fail   error
	from   *series.Store
}

type viewState struct {
	Width, Height          float64
	PriceTop, PriceBottom  float64
	ViewFrom, BarSpacing   float64
	VisibleFrom, VisibleTo float64
}

// ChartSession is one client's chart: its bar series, drawings, indicator
// engine and pane layout. All events are processed on the Run goroutine.
type ChartSession struct {
	hub  *Hub
	emit func(msgType string, payload any)

	events chan Event

	key      model.SeriesKey
	store    *series.Store
	col      *drawing.Collection
	machine  *drawing.Machine
	renderer *drawing.Renderer
	panes    *pane.Coordinator
	engine   *indicator.Engine

	view      viewState
	symCtx    context.Context
	symCancel context.CancelFunc
}

func newSession(hub *Hub, emit func(msgType string, payload any)) *ChartSession {
	return &ChartSession{
		hub:    hub,
		emit:   emit,
		events: make(chan Event, 256),
		panes:  pane.NewCoordinator(),
	}
}

// Enqueue queues a client event; a full queue drops the event rather than
// blocking the read pump.
func (s *ChartSession) Enqueue(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Printf("[gateway] %s: session queue full, dropping %q", s.key, ev.Type)
	}
}

// EnqueueBar queues a realtime bar from the hub's feed fan-out.
func (s *ChartSession) EnqueueBar(upd model.BarUpdate) {
	u := upd
	s.Enqueue(Event{Type: "_bar", bar: &u})
}

// Close tears down the active symbol's feed and engine.
func (s *ChartSession) Close() {
	if s.symCancel != nil {
		s.symCancel()
	}
}

// Run processes events until ctx is cancelled.
func (s *ChartSession) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			start := time.Now()
			s.handle(ctx, ev)
			if s.hub.Latency != nil {
				s.hub.Latency.Record(float64(time.Since(start).Microseconds()) / 1000.0)
			}
		}
	}
}

func (s *ChartSession) handle(ctx context.Context, ev Event) {
	switch ev.Type {
	case "set_symbol":
		s.setSymbol(ctx, ev.Ticker, ev.Interval)
	case "retry_load":
		s.startLoad(s.symCtx)
	case "view":
		s.setView(ev)
	case "select_tool":
		if s.machine != nil {
			s.machine.SelectTool(drawing.Tool(ev.Tool))
			s.sendState()
		}
	case "pointer_down":
		s.withFrame(func(fr drawing.Frame) { s.machine.PointerDown(ev.X, ev.Y, fr) })
	case "pointer_move":
		s.withFrame(func(fr drawing.Frame) { s.machine.PointerMove(ev.X, ev.Y, fr) })
	case "pointer_up":
		s.withFrame(func(fr drawing.Frame) { s.machine.PointerUp(ev.X, ev.Y, fr) })
	case "double_click":
		s.withFrame(func(fr drawing.Frame) {
			if d := s.machine.DoubleClick(ev.X, ev.Y, fr); d != nil {
				s.emit("edit", d)
			}
		})
	case "key":
		if s.machine == nil {
			return
		}
		switch ev.Key {
		case "escape":
			s.machine.Escape()
		case "delete":
			s.machine.DeleteSelected()
		}
		s.sendState()
	case "delete_drawing":
		if s.machine != nil {
			s.machine.Delete(ev.ID)
			s.sendState()
		}
	case "update_style":
		if s.machine != nil {
			s.machine.UpdateStyle(ev.ID, ev.Color, ev.LineWidth)
		}
	case "clear_drawings":
		if s.machine != nil {
			s.machine.ClearAll()
			s.sendState()
		}
	case "set_indicators":
		s.setIndicators(ev.Specs)

	case "_bar":
		if s.store != nil && ev.bar != nil {
			s.store.ApplyRealtime(ev.bar.Bar)
		}
	case "_series_changed":
		if ev.from != s.store {
			return
		}
		s.seriesChanged()
	case "_loaded":
		if ev.from != s.store {
			return
		}
		if ev.fail != nil {
			s.emit("load_error", map[string]any{"error": ev.fail.Error(), "retryable": true})
			return
		}
		s.sendSnapshot()
	case "_indicators":
		if ev.result != nil && ev.result.Key == s.key {
			s.emit("indicators", ev.result)
		}
	}
}

// setSymbol swaps the session to a new (ticker, interval): fresh series
// store, persisted drawings reloaded, feed watch moved, engine restarted.
func (s *ChartSession) setSymbol(ctx context.Context, ticker, interval string) {
	if ticker == "" || interval == "" {
		s.emit("error", map[string]string{"error": "ticker and interval are required"})
		return
	}
	if s.symCancel != nil {
		s.symCancel()
	}
	symCtx, cancel := context.WithCancel(ctx)
	s.symCtx = symCtx
	s.symCancel = cancel

	s.key = model.SeriesKey{Ticker: ticker, Interval: interval}
	s.store = series.New(ticker, interval, s.hub.Fetcher)
	store := s.store
	s.store.OnChange = func() {
		s.Enqueue(Event{Type: "_series_changed", from: store})
	}

	s.col = drawing.NewCollection(ticker)
	s.renderer = drawing.NewRenderer()
	s.machine = drawing.NewMachine(s.col, s.hub.Defaults)
	s.machine.OnCommit = s.persistDrawings
	if s.hub.Store != nil {
		if saved, err := s.hub.Store.LoadDrawings(ticker); err != nil {
			log.Printf("[gateway] %s: load drawings: %v", s.key, err)
		} else {
			s.col.Replace(saved)
		}
	}

	s.engine = indicator.NewEngine()
	s.engine.OnResult = func(res *indicator.BatchResult) {
		if s.hub.Metrics != nil {
			s.hub.Metrics.IndicatorBatches.Inc()
		}
		s.Enqueue(Event{Type: "_indicators", result: res})
	}
	s.engine.OnStale = func(k model.SeriesKey) {
		if s.hub.Metrics != nil {
			s.hub.Metrics.StaleBatchesDropped.Inc()
		}
		log.Printf("[gateway] %s: dropped stale indicator batch", k)
	}
	go s.engine.Run(symCtx)
	go s.store.Run(symCtx)

	// Apply the interval's preset until the client chooses indicators.
	if len(s.panes.Specs()) == 0 && s.hub.Presets != nil {
		if specs := s.hub.Presets(interval); len(specs) > 0 {
			s.panes.SetIndicators(specs)
			s.emit("panes", s.panes.Panels())
		}
	}

	s.hub.Watch(s.client(), s.key)
	s.startLoad(symCtx)
}

// startLoad fetches the initial page off the event loop; a failure is
// surfaced as a retryable error without touching existing state. The fetch
// runs on the symbol context, so switching symbols cancels it, and a
// completion for a superseded store is dropped on arrival.
func (s *ChartSession) startLoad(ctx context.Context) {
	if s.store == nil || ctx == nil {
		return
	}
	store := s.store
	go func() {
		err := store.Load(ctx)
		if ctx.Err() != nil {
			return
		}
		s.Enqueue(Event{Type: "_loaded", fail: err, from: store})
	}()
}

func (s *ChartSession) setView(ev Event) {
	s.view = viewState{
		Width: ev.Width, Height: ev.Height,
		PriceTop: ev.PriceTop, PriceBottom: ev.PriceBottom,
		ViewFrom: ev.ViewFrom, BarSpacing: ev.BarSpacing,
		VisibleFrom: ev.VisibleFrom, VisibleTo: ev.VisibleTo,
	}
	if s.store != nil {
		s.store.SetVisibleRange(ev.VisibleFrom, ev.VisibleTo)
	}
	s.panes.SyncVisibleRange(ev.VisibleFrom, ev.VisibleTo)
	s.sendState()
}

func (s *ChartSession) setIndicators(specs []indicator.Spec) {
	s.panes.SetIndicators(specs)
	s.emit("panes", s.panes.Panels())
	s.submitIndicators()
}

func (s *ChartSession) submitIndicators() {
	if s.engine == nil || s.store == nil {
		return
	}
	specs := s.panes.Specs()
	if len(specs) == 0 {
		return
	}
	s.engine.Submit(indicator.Request{Key: s.key, Bars: s.store.Bars(), Specs: specs})
}

// seriesChanged runs after any merge into the bar series: pagination, a
// realtime bar, or the initial load. Out-of-range drawing anchors are
// re-derived and the indicator set recomputed over the new window.
func (s *ChartSession) seriesChanged() {
	if proj, ok := s.projection(); ok {
		drawing.RefreshLogical(s.col, proj.Mapper)
	}
	s.emit("series", map[string]any{
		"bars":         s.store.Bars(),
		"hasMore":      s.store.HasMore(),
		"oldestTime":   s.store.OldestTime(),
		"awayFromLive": s.store.AwayFromLive(),
	})
	s.submitIndicators()
}

func (s *ChartSession) sendSnapshot() {
	if s.store == nil {
		return
	}
	s.emit("snapshot", map[string]any{
		"ticker":     s.key.Ticker,
		"interval":   s.key.Interval,
		"bars":       s.store.Bars(),
		"hasMore":    s.store.HasMore(),
		"oldestTime": s.store.OldestTime(),
		"drawings":   s.col.All(),
	})
}

func (s *ChartSession) sendState() {
	if s.machine == nil {
		return
	}
	s.emit("state", map[string]any{
		"state":      int(s.machine.State()),
		"tool":       string(s.machine.Tool()),
		"selected":   s.machine.Selected(),
		"hovered":    s.machine.Hovered(),
		"scrollZoom": s.machine.ScrollZoomEnabled(),
		"awayFromLive": func() bool {
			if s.store == nil {
				return false
			}
			return s.store.AwayFromLive()
		}(),
	})
}

func (s *ChartSession) persistDrawings() {
	if s.hub.Metrics != nil {
		s.hub.Metrics.DrawingOps.WithLabelValues("persist").Inc()
	}
	if s.hub.Store != nil {
		if err := s.hub.Store.ReplaceDrawings(s.key.Ticker, s.col.All()); err != nil {
			log.Printf("[gateway] %s: persist drawings: %v", s.key, err)
		}
	}
	s.emit("drawings", s.col.All())
	s.sendState()
}

// projection rebuilds the coordinate mapping from the live view. Nothing is
// cached across events: pixel positions depend on the current zoom/scroll.
func (s *ChartSession) projection() (drawing.Projection, bool) {
	if s.store == nil || s.view.BarSpacing <= 0 || s.view.Height <= 0 {
		return drawing.Projection{}, false
	}
	times := s.store.Times()
	if len(times) < 2 {
		return drawing.Projection{}, false
	}
	scale := coord.NewTimeScale(times, s.view.ViewFrom, s.view.BarSpacing)
	return drawing.Projection{
		Mapper: coord.NewMapper(times, scale),
		Prices: coord.PriceScale{Top: s.view.PriceTop, Bottom: s.view.PriceBottom, Height: s.view.Height},
	}, true
}

// withFrame dispatches a pointer event against a freshly built frame. With
// no usable projection the event is ignored and no state is touched.
func (s *ChartSession) withFrame(fn func(drawing.Frame)) {
	if s.machine == nil {
		return
	}
	proj, ok := s.projection()
	if !ok {
		return
	}
	s.renderer.Sync(s.col.All(), proj)
	s.renderer.SetEmphasis(s.machine.Selected(), s.machine.Hovered())
	fn(drawing.Frame{Proj: proj, Renderer: s.renderer, LocalBarRange: s.localBarRange()})
	s.renderer.SetEmphasis(s.machine.Selected(), s.machine.Hovered())
	s.sendState()
}

// localBarRange averages the high-low span of the visible bars.
func (s *ChartSession) localBarRange() float64 {
	bars := s.store.Bars()
	if len(bars) == 0 {
		return 0
	}
	from, to := int(s.view.VisibleFrom), int(s.view.VisibleTo)
	if from < 0 {
		from = 0
	}
	if to <= from || to > len(bars) {
		to = len(bars)
	}
	if from >= to {
		from = 0
	}
	sum := 0.0
	for _, b := range bars[from:to] {
		sum += b.High - b.Low
	}
	return sum / float64(to-from)
}

// client finds the owning client for hub watch bookkeeping.
func (s *ChartSession) client() *Client {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	for c := range s.hub.clients {
		if c.session == s {
			return c
		}
	}
	return nil
}

// marshalMsg builds the outbound envelope.
func marshalMsg(msgType string, payload any) []byte {
	buf, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{msgType, payload})
	if err != nil {
		log.Printf("[gateway] marshal %s: %v", msgType, err)
		return nil
	}
	return buf
}
