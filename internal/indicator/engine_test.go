package indicator

import (
	"context"
	"testing"
	"time"

	"chartengine/internal/model"
)

func key(ticker, interval string) model.SeriesKey {
	return model.SeriesKey{Ticker: ticker, Interval: interval}
}

func TestEngineComputesAndCaches(t *testing.T) {
	e := NewEngine()
	done := make(chan *BatchResult, 1)
	e.OnResult = func(r *BatchResult) { done <- r }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.Submit(Request{
		Key:   key("ACME", "1day"),
		Bars:  flatBars(40, 100, 10),
		Specs: []Spec{{Type: TypeSMA, Period: 20}, {Type: TypeRSI, Period: 14}},
	})

	select {
	case res := <-done:
		if len(res.Lines["SMA_20"]) == 0 {
			t.Error("SMA_20 missing from batch")
		}
		if len(res.Lines["RSI_14"]) == 0 {
			t.Error("RSI_14 missing from batch")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch never completed")
	}

	if _, ok := e.Cached(key("ACME", "1day")); !ok {
		t.Error("result not cached")
	}
}

func TestCacheInvalidationAcrossIntervals(t *testing.T) {
	// RSI computed for (ACME, 1day) must never be returned for a
	// subsequent (ACME, 1hour) request.
	e := NewEngine()
	results := make(chan *BatchResult, 2)
	e.OnResult = func(r *BatchResult) { results <- r }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	dayBars := risingBars(40, 100, 1)
	hourBars := risingBars(40, 200, 2)
	e.Submit(Request{Key: key("ACME", "1day"), Bars: dayBars, Specs: []Spec{{Type: TypeRSI, Period: 14}}})
	<-results
	e.Submit(Request{Key: key("ACME", "1hour"), Bars: hourBars, Specs: []Spec{{Type: TypeRSI, Period: 14}}})
	<-results

	day, _ := e.Cached(key("ACME", "1day"))
	hour, ok := e.Cached(key("ACME", "1hour"))
	if !ok {
		t.Fatal("hour batch not cached")
	}
	if hour.Key.Interval != "1hour" {
		t.Fatalf("cache returned wrong key: %+v", hour.Key)
	}
	// Different underlying data → different first timestamps.
	if day.Lines["RSI_14"][0].Time == hour.Lines["RSI_14"][0].Time &&
		day.Lines["RSI_14"][0].Value == hour.Lines["RSI_14"][0].Value {
		t.Error("1hour request returned 1day RSI values")
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	e := NewEngine()
	stale := make(chan model.SeriesKey, 1)
	e.OnStale = func(k model.SeriesKey) { stale <- k }

	k := key("ACME", "1day")
	req := Request{Key: k, Bars: flatBars(40, 100, 10), Specs: []Spec{{Type: TypeSMA, Period: 20}}}

	// Simulate a completed batch whose key was re-submitted mid-flight:
	// compute against epoch 1, then bump the epoch before applying.
	e.mu.Lock()
	e.epochs[k] = 1
	e.mu.Unlock()
	res := computeBatch(req, 1)
	e.mu.Lock()
	e.epochs[k] = 2
	e.mu.Unlock()

	e.apply(res)

	select {
	case got := <-stale:
		if got != k {
			t.Errorf("stale key = %v, want %v", got, k)
		}
	default:
		t.Fatal("stale batch was not reported")
	}
	if _, ok := e.Cached(k); ok {
		t.Error("stale batch must not be applied to the cache")
	}
}

func TestInvalidateDropsCache(t *testing.T) {
	e := NewEngine()
	k := key("ACME", "1day")
	e.mu.Lock()
	e.epochs[k] = 1
	e.mu.Unlock()
	e.apply(computeBatch(Request{Key: k, Bars: flatBars(40, 100, 10), Specs: []Spec{{Type: TypeOBV}}}, 1))
	if _, ok := e.Cached(k); !ok {
		t.Fatal("batch should be cached")
	}

	e.Invalidate(k)
	if _, ok := e.Cached(k); ok {
		t.Error("invalidate must drop the cached batch")
	}
}

func TestBatchIsolatesFailingIndicator(t *testing.T) {
	res := computeBatch(Request{
		Key:  key("ACME", "1day"),
		Bars: flatBars(40, 100, 10),
		Specs: []Spec{
			{Type: TypeSMA, Period: 20},
			{Type: TypeEMA, Period: -5},  // invalid
			{Type: "WAVELET", Period: 3}, // unknown
			{Type: TypeOBV},
		},
	}, 1)

	if len(res.Lines["SMA_20"]) == 0 {
		t.Error("SMA_20 must survive a failing sibling")
	}
	if len(res.Lines["OBV"]) == 0 {
		t.Error("OBV must survive a failing sibling")
	}
	if _, ok := res.Lines["EMA_-5"]; ok {
		t.Error("invalid indicator must be absent")
	}
}

func TestSpecNamesAndParsing(t *testing.T) {
	cases := []struct {
		spec Spec
		name string
	}{
		{Spec{Type: TypeSMA, Period: 20}, "SMA_20"},
		{Spec{Type: TypeVWAP}, "VWAP"},
		{Spec{Type: TypeMACD}, "MACD"},
	}
	for _, tc := range cases {
		if got := tc.spec.Name(); got != tc.name {
			t.Errorf("Name() = %q, want %q", got, tc.name)
		}
		parsed, err := ParseSpec(tc.name)
		if err != nil {
			t.Errorf("ParseSpec(%q): %v", tc.name, err)
		}
		if parsed != tc.spec {
			t.Errorf("ParseSpec(%q) = %+v, want %+v", tc.name, parsed, tc.spec)
		}
	}
	if !(Spec{Type: TypeEMA, Period: 9}).IsOverlay() {
		t.Error("EMA must be an overlay")
	}
	if (Spec{Type: TypeRSI, Period: 14}).IsOverlay() {
		t.Error("RSI must be a sub-panel indicator")
	}
}
