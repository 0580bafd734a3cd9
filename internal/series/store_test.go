package series

import (
	"context"
	"errors"
	"testing"

	"chartengine/internal/model"
)

// fakeFetcher serves fixed pages keyed by the before cursor.
type fakeFetcher struct {
	pages map[int64]Page
	calls []int64
	err   error
}

func (f *fakeFetcher) FetchBars(_ context.Context, _, _ string, before int64) (Page, error) {
	f.calls = append(f.calls, before)
	if f.err != nil {
		return Page{}, f.err
	}
	return f.pages[before], nil
}

func mkBars(times ...int64) []model.Bar {
	bars := make([]model.Bar, len(times))
	for i, ts := range times {
		bars[i] = model.Bar{Time: ts, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100}
	}
	return bars
}

func ptr(v int64) *int64 { return &v }

func newLoaded(t *testing.T, f *fakeFetcher) *Store {
	t.Helper()
	s := New("ACME", "1day", f)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func assertSorted(t *testing.T, s *Store) {
	t.Helper()
	times := s.Times()
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			t.Fatalf("series not strictly ascending at %d: %v", i, times)
		}
	}
}

func TestLoadOlderMergesAtFront(t *testing.T) {
	f := &fakeFetcher{pages: map[int64]Page{
		0:   {Bars: mkBars(400, 500, 600), OldestTime: ptr(400), HasMore: true},
		400: {Bars: mkBars(100, 200, 300), OldestTime: ptr(100), HasMore: false},
	}}
	s := newLoaded(t, f)

	if err := s.LoadOlder(context.Background()); err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if got := s.Len(); got != 6 {
		t.Fatalf("expected 6 bars, got %d", got)
	}
	if s.OldestTime() != 100 {
		t.Errorf("oldestTime = %d, want 100", s.OldestTime())
	}
	if s.HasMore() {
		t.Errorf("expected hasMore=false after final page")
	}
	assertSorted(t, s)
}

func TestLoadOlderIdempotent(t *testing.T) {
	// The older page overlaps the existing series at time 400; existing
	// entries win ties and a repeat merge changes nothing.
	older := Page{Bars: mkBars(100, 200, 300, 400), OldestTime: ptr(100), HasMore: true}
	f := &fakeFetcher{pages: map[int64]Page{
		0:   {Bars: mkBars(400, 500, 600), OldestTime: ptr(400), HasMore: true},
		400: older,
		100: older, // backend repeats itself
	}}
	s := newLoaded(t, f)

	if err := s.LoadOlder(context.Background()); err != nil {
		t.Fatalf("first LoadOlder: %v", err)
	}
	first := s.Times()

	s.mu.Lock()
	s.mergeOlderLocked(older)
	s.mu.Unlock()
	second := s.Times()

	if len(first) != len(second) {
		t.Fatalf("idempotency broken: %d bars then %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("series changed at %d: %d vs %d", i, first[i], second[i])
		}
	}
	assertSorted(t, s)
}

func TestLoadFailureIsRetryable(t *testing.T) {
	f := &fakeFetcher{err: errors.New("backend down")}
	s := New("ACME", "1day", f)

	if err := s.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if s.Len() != 0 {
		t.Fatalf("failed load must not mutate series")
	}
	if s.LoadError() == nil {
		t.Fatal("expected retryable error state")
	}

	// Retry with a healthy backend re-issues the same request.
	f.err = nil
	f.pages = map[int64]Page{0: {Bars: mkBars(100, 200), OldestTime: ptr(100), HasMore: false}}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s.LoadError() != nil {
		t.Errorf("error state should clear on success")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 bars after retry, got %d", s.Len())
	}
}

func TestPaginationFailureStopsSilently(t *testing.T) {
	f := &fakeFetcher{pages: map[int64]Page{
		0: {Bars: mkBars(400, 500), OldestTime: ptr(400), HasMore: true},
	}}
	s := newLoaded(t, f)

	f.err = errors.New("backend down")
	if err := s.LoadOlder(context.Background()); err == nil {
		t.Fatal("expected pagination error")
	}
	if s.HasMore() {
		t.Error("pagination failure must set no-more-available")
	}
	if s.Len() != 2 {
		t.Errorf("loaded history must survive pagination failure, got %d bars", s.Len())
	}
	// No retry loop: further LoadOlder calls are no-ops.
	if err := s.LoadOlder(context.Background()); !errors.Is(err, ErrNoMoreHistory) {
		t.Errorf("expected ErrNoMoreHistory, got %v", err)
	}
}

func TestApplyRealtimeReplaceAndAppend(t *testing.T) {
	f := &fakeFetcher{pages: map[int64]Page{
		0: {Bars: mkBars(100, 200), OldestTime: ptr(100), HasMore: false},
	}}
	s := newLoaded(t, f)

	// Same time as the last bar: replace in place, no length change.
	s.ApplyRealtime(model.Bar{Time: 200, Open: 10, High: 12, Low: 9, Close: 11.5, Volume: 150})
	if s.Len() != 2 {
		t.Fatalf("replace changed length: %d", s.Len())
	}
	last, _ := s.LastBar()
	if last.Close != 11.5 {
		t.Errorf("last bar not replaced, close = %f", last.Close)
	}

	// Newer time: append.
	s.ApplyRealtime(model.Bar{Time: 300, Open: 11, High: 12, Low: 10, Close: 11, Volume: 80})
	if s.Len() != 3 {
		t.Fatalf("append expected length 3, got %d", s.Len())
	}

	// Duplicate of a historical time: replace, never reorder.
	s.ApplyRealtime(model.Bar{Time: 100, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10})
	if s.Len() != 3 {
		t.Fatalf("historical replace changed length: %d", s.Len())
	}
	assertSorted(t, s)

	// Unknown out-of-order time: dropped.
	s.ApplyRealtime(model.Bar{Time: 150, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10})
	if s.Len() != 3 {
		t.Fatalf("out-of-order bar must be dropped, got %d bars", s.Len())
	}
	assertSorted(t, s)
}

func TestMalformedBarsRejectedIndividually(t *testing.T) {
	page := Page{Bars: []model.Bar{
		{Time: 100, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1},
		{Time: 0, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1},    // bad time
		{Time: 200, Open: 10, High: 8, Low: 9, Close: 10, Volume: 1},   // high < low
		{Time: 300, Open: 10, High: 11, Low: 9, Close: 10, Volume: -1}, // negative volume
		{Time: 400, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1},
	}, OldestTime: ptr(100), HasMore: false}
	f := &fakeFetcher{pages: map[int64]Page{0: page}}
	s := newLoaded(t, f)

	if s.Len() != 2 {
		t.Fatalf("expected 2 valid bars, got %d", s.Len())
	}
	assertSorted(t, s)
}

func TestAwayFromLive(t *testing.T) {
	f := &fakeFetcher{pages: map[int64]Page{
		0: {Bars: mkBars(100, 200, 300, 400, 500, 600, 700, 800, 900, 1000), OldestTime: ptr(100), HasMore: false},
	}}
	s := newLoaded(t, f)

	s.SetVisibleRange(60, 9.5)
	if s.AwayFromLive() {
		t.Error("view at the right edge should not be away from live")
	}
	s.SetVisibleRange(60, 5)
	if !s.AwayFromLive() {
		t.Error("view scrolled back should be away from live")
	}
}

func TestAutoPaginationTrigger(t *testing.T) {
	f := &fakeFetcher{pages: map[int64]Page{
		0: {Bars: mkBars(400, 500), OldestTime: ptr(400), HasMore: true},
	}}
	s := newLoaded(t, f)

	s.SetVisibleRange(120, 200)
	select {
	case <-s.olderCh:
		t.Fatal("no pagination expected while far from the left edge")
	default:
	}

	s.SetVisibleRange(10, 90)
	select {
	case <-s.olderCh:
	default:
		t.Fatal("expected pagination signal when near the left edge")
	}
}
