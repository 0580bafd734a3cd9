package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chartengine/internal/drawing"
	"chartengine/internal/indicator"
	"chartengine/internal/model"
	"chartengine/internal/pane"
	"chartengine/internal/series"
)

// fakeFetcher serves a fixed most-recent page.
type fakeFetcher struct {
	bars []model.Bar
	err  error
}

func (f *fakeFetcher) FetchBars(ctx context.Context, ticker, interval string, before int64) (series.Page, error) {
	if f.err != nil {
		return series.Page{}, f.err
	}
	oldest := f.bars[0].Time
	return series.Page{Bars: f.bars, OldestTime: &oldest, HasMore: false}, nil
}

// slowFetcher answers after a fixed delay, regardless of cancellation, so
// completions can arrive after the requester is gone.
type slowFetcher struct {
	delay time.Duration
	bars  []model.Bar
}

func (f *slowFetcher) FetchBars(ctx context.Context, ticker, interval string, before int64) (series.Page, error) {
	time.Sleep(f.delay)
	oldest := f.bars[0].Time
	return series.Page{Bars: f.bars, OldestTime: &oldest, HasMore: false}, nil
}

// splitFetcher hangs fetches for the slow ticker until released and serves
// every other ticker immediately.
type splitFetcher struct {
	slowTicker string
	release    chan struct{}
	bars       []model.Bar
}

func (f *splitFetcher) FetchBars(ctx context.Context, ticker, interval string, before int64) (series.Page, error) {
	if ticker == f.slowTicker {
		select {
		case <-f.release:
			return series.Page{}, errors.New("upstream down")
		case <-ctx.Done():
			return series.Page{}, ctx.Err()
		}
	}
	oldest := f.bars[0].Time
	return series.Page{Bars: f.bars, OldestTime: &oldest, HasMore: false}, nil
}

// emitLog records outbound session messages.
type emitLog struct {
	mu   sync.Mutex
	msgs []struct {
		Type    string
		Payload any
	}
}

func (l *emitLog) add(msgType string, payload any) {
	l.mu.Lock()
	l.msgs = append(l.msgs, struct {
		Type    string
		Payload any
	}{msgType, payload})
	l.mu.Unlock()
}

// wait polls until a message of the given type arrives.
func (l *emitLog) wait(t *testing.T, msgType string) any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, m := range l.msgs {
			if m.Type == msgType {
				l.mu.Unlock()
				return m.Payload
			}
		}
		l.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q message within deadline", msgType)
	return nil
}

func (l *emitLog) reset() {
	l.mu.Lock()
	l.msgs = nil
	l.mu.Unlock()
}

func tenBars() []model.Bar {
	bars := make([]model.Bar, 10)
	for i := range bars {
		c := 50 + float64(i)
		bars[i] = model.Bar{Time: 100 + int64(i)*100, Open: c - 1, High: c + 2, Low: c - 2, Close: c, Volume: 100}
	}
	return bars
}

func defaults() drawing.Defaults {
	return drawing.Defaults{Color: "#2196f3", LineWidth: 1, LineStyle: model.LineSolid, FillColor: "#2196f322"}
}

// newRunningSession builds a session over the fake fetcher, selects a
// symbol and waits for the initial snapshot.
func newRunningSession(t *testing.T, f series.Fetcher) (*ChartSession, *emitLog) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(ctx, f, nil, nil, defaults())
	log := &emitLog{}
	s := newSession(hub, log.add)
	go s.Run(ctx)

	s.Enqueue(Event{Type: "set_symbol", Ticker: "ACME", Interval: "1day"})
	log.wait(t, "snapshot")

	// Plot view: 10px per bar, price 0..100 over 100px of height, so
	// x = logical*10 and price = 100 - y.
	s.Enqueue(Event{Type: "view", Width: 800, Height: 100, PriceTop: 100, PriceBottom: 0, ViewFrom: 0, BarSpacing: 10, VisibleFrom: 0, VisibleTo: 10})
	log.wait(t, "state")
	return s, log
}

func TestSessionPlacementOverWebSocketEvents(t *testing.T) {
	s, log := newRunningSession(t, &fakeFetcher{bars: tenBars()})
	log.reset()

	s.Enqueue(Event{Type: "select_tool", Tool: "trendline"})
	s.Enqueue(Event{Type: "pointer_down", X: 0, Y: 90})
	s.Enqueue(Event{Type: "pointer_move", X: 5, Y: 85})
	s.Enqueue(Event{Type: "pointer_down", X: 10, Y: 80})

	payload := log.wait(t, "drawings").([]model.Drawing)
	if len(payload) != 1 {
		t.Fatalf("expected 1 drawing, got %d", len(payload))
	}
	d := payload[0]
	if d.Type != model.DrawingTrendline {
		t.Fatalf("type = %s", d.Type)
	}
	if d.Point1.Time != 100 || d.Point1.Price != 10 {
		t.Errorf("point1 = %+v", d.Point1)
	}
	if d.Point2.Time != 200 || d.Point2.Price != 20 {
		t.Errorf("point2 = %+v", d.Point2)
	}
}

func TestSessionEscapeDiscardsPlacement(t *testing.T) {
	s, log := newRunningSession(t, &fakeFetcher{bars: tenBars()})
	log.reset()

	s.Enqueue(Event{Type: "select_tool", Tool: "rectangle"})
	s.Enqueue(Event{Type: "pointer_down", X: 0, Y: 90})
	s.Enqueue(Event{Type: "key", Key: "escape"})

	// The state message after escape must show idle with no tool.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		log.mu.Lock()
		var last map[string]any
		for _, m := range log.msgs {
			if m.Type == "state" {
				last = m.Payload.(map[string]any)
			}
		}
		log.mu.Unlock()
		if last != nil && last["state"] == int(drawing.StateIdle) && last["tool"] == "" {
			if s.col.Len() != 0 {
				t.Fatalf("placement leaked a drawing")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("never returned to idle")
}

func TestSessionRealtimeBarExtendsSeries(t *testing.T) {
	s, log := newRunningSession(t, &fakeFetcher{bars: tenBars()})
	log.reset()

	s.EnqueueBar(model.BarUpdate{
		Ticker: "ACME", Interval: "1day", IsNewBar: true,
		Bar: model.Bar{Time: 1100, Open: 60, High: 62, Low: 58, Close: 61, Volume: 50},
	})

	payload := log.wait(t, "series").(map[string]any)
	bars := payload["bars"].([]model.Bar)
	if len(bars) != 11 {
		t.Fatalf("expected 11 bars, got %d", len(bars))
	}
	if bars[10].Time != 1100 {
		t.Errorf("last bar time = %d", bars[10].Time)
	}
}

func TestSessionIndicatorsFlowThroughEngine(t *testing.T) {
	s, log := newRunningSession(t, &fakeFetcher{bars: tenBars()})
	log.reset()

	s.Enqueue(Event{Type: "set_indicators", Specs: []indicator.Spec{{Type: indicator.TypeSMA, Period: 3}, {Type: indicator.TypeRSI, Period: 5}}})

	panels := log.wait(t, "panes").([]pane.Pane)
	if len(panels) != 1 || panels[0].ID != "panel:RSI_5" {
		t.Fatalf("panels = %+v", panels)
	}
	res := log.wait(t, "indicators").(*indicator.BatchResult)
	if res.Key.Ticker != "ACME" || res.Key.Interval != "1day" {
		t.Fatalf("result key = %v", res.Key)
	}
	if len(res.Lines["SMA_3"]) == 0 {
		t.Error("SMA_3 missing")
	}
	if len(res.Lines["RSI_5"]) == 0 {
		t.Error("RSI_5 missing")
	}
}

func TestSessionLoadFailureIsRetryable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fakeFetcher{err: errors.New("upstream down")}
	hub := NewHub(ctx, f, nil, nil, defaults())
	log := &emitLog{}
	s := newSession(hub, log.add)
	go s.Run(ctx)

	s.Enqueue(Event{Type: "set_symbol", Ticker: "ACME", Interval: "1day"})
	payload := log.wait(t, "load_error").(map[string]any)
	if payload["retryable"] != true {
		t.Fatalf("load_error = %+v", payload)
	}

	// Retry with a healthy upstream succeeds without a new set_symbol.
	f.err = nil
	f.bars = tenBars()
	log.reset()
	s.Enqueue(Event{Type: "retry_load"})
	snap := log.wait(t, "snapshot").(map[string]any)
	if len(snap["bars"].([]model.Bar)) != 10 {
		t.Fatalf("snapshot bars = %v", snap["bars"])
	}
}

func TestDisconnectDuringSlowLoadLeavesSendOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(ctx, &slowFetcher{delay: 60 * time.Millisecond, bars: tenBars()}, nil, nil, defaults())
	c := hub.register(newClient(hub, nil))

	c.session.Enqueue(Event{Type: "set_symbol", Ticker: "ACME", Interval: "1day"})
	time.Sleep(20 * time.Millisecond)

	// Peer drops while the initial fetch is still in flight.
	hub.Unwatch(c)
	hub.removeClient(c)
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("client count after removal = %d", n)
	}

	// Let the fetch complete against the torn-down session. Its completion
	// must drain quietly instead of crashing the process.
	time.Sleep(100 * time.Millisecond)

	// The send buffer must still be open: a write after removal may be
	// wasted, but it must never panic.
	select {
	case c.send <- []byte(`{"type":"state"}`):
	default:
		t.Fatal("send buffer refused a write")
	}
}

func TestDisconnectStopsSessionLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(ctx, &fakeFetcher{bars: tenBars()}, nil, nil, defaults())
	c := hub.register(newClient(hub, nil))

	hub.removeClient(c)
	time.Sleep(50 * time.Millisecond)

	// With the loop stopped, enqueued events pile up unprocessed.
	for i := 0; i < 5; i++ {
		c.session.Enqueue(Event{Type: "view", BarSpacing: 10})
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(c.session.events); n != 5 {
		t.Fatalf("session loop still draining after disconnect: %d of 5 events left", n)
	}
}

func TestSymbolSwitchDropsSupersededLoad(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &splitFetcher{slowTicker: "OLD", release: make(chan struct{}), bars: tenBars()}
	hub := NewHub(ctx, f, nil, nil, defaults())
	log := &emitLog{}
	s := newSession(hub, log.add)
	go s.Run(ctx)

	s.Enqueue(Event{Type: "set_symbol", Ticker: "OLD", Interval: "1day"})
	time.Sleep(20 * time.Millisecond)
	s.Enqueue(Event{Type: "set_symbol", Ticker: "ACME", Interval: "1day"})

	snap := log.wait(t, "snapshot").(map[string]any)
	if snap["ticker"] != "ACME" {
		t.Fatalf("snapshot ticker = %v", snap["ticker"])
	}

	// Unblock the superseded fetch; its failure belongs to the old symbol
	// and must not surface against the current one.
	close(f.release)
	time.Sleep(50 * time.Millisecond)

	log.mu.Lock()
	defer log.mu.Unlock()
	snapshots := 0
	for _, m := range log.msgs {
		if m.Type == "load_error" {
			t.Fatalf("stale load error surfaced: %+v", m.Payload)
		}
		if m.Type == "snapshot" {
			snapshots++
		}
	}
	if snapshots != 1 {
		t.Fatalf("expected exactly 1 snapshot, got %d", snapshots)
	}
}

func TestMarshalMsgEnvelope(t *testing.T) {
	buf := marshalMsg("state", map[string]any{"tool": "trendline"})
	var env struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "state" || env.Data["tool"] != "trendline" {
		t.Errorf("envelope = %+v", env)
	}
}
