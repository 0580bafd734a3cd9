// Package series owns the ordered bar series for one (ticker, interval)
// pair: initial load, backward pagination with idempotent front-merge, and
// realtime replace/append. All mutation is serialized through the store's
// mutex; fetches are asynchronous and never block event handling.
package series

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"chartengine/internal/model"
)

const (
	// autoLoadThreshold is the logical index below which a scroll towards
	// the left edge triggers backward pagination. Far enough from the edge
	// that a fast scroll does not outrun fetch latency.
	autoLoadThreshold = 50

	// liveTolerance is how many bars the visible upper bound may trail the
	// newest bar before the view counts as scrolled away from live.
	liveTolerance = 3
)

// ErrNoMoreHistory is returned by LoadOlder when the backend has no bars
// older than the current oldest.
var ErrNoMoreHistory = errors.New("series: no more history")

// Page is one response of the historical-bar fetch interface. Bars are
// ascending by time. OldestTime is nil when the page is empty.
type Page struct {
	Bars       []model.Bar
	OldestTime *int64
	HasMore    bool
}

// Fetcher retrieves historical bars. before == 0 requests the most recent
// page; otherwise the page strictly older than that timestamp.
type Fetcher interface {
	FetchBars(ctx context.Context, ticker, interval string, before int64) (Page, error)
}

// Store holds the bar series for a single (ticker, interval).
type Store struct {
	ticker   string
	interval string
	fetcher  Fetcher

	mu         sync.RWMutex
	bars       []model.Bar
	oldestTime int64
	hasMore    bool
	loaded     bool
	loadErr    error

	// Visible logical index range, set by the view on scroll/zoom.
	visibleFrom float64
	visibleTo   float64

	paging  bool
	olderCh chan struct{}

	// OnChange, if set, is invoked (without the lock held) after any
	// mutation of the series. Used to fan updates out to subscribers.
	OnChange func()
}

// New creates a store for one (ticker, interval) pair.
func New(ticker, interval string, fetcher Fetcher) *Store {
	return &Store{
		ticker:   ticker,
		interval: interval,
		fetcher:  fetcher,
		olderCh:  make(chan struct{}, 1),
	}
}

// Key returns the series identity.
func (s *Store) Key() model.SeriesKey {
	return model.SeriesKey{Ticker: s.ticker, Interval: s.interval}
}

// Load fetches the most recent page and replaces the series. On failure the
// existing series is left untouched and the error is kept as a retryable
// state; calling Load again re-issues the same request.
func (s *Store) Load(ctx context.Context) error {
	page, err := s.fetcher.FetchBars(ctx, s.ticker, s.interval, 0)
	if err != nil {
		s.mu.Lock()
		s.loadErr = fmt.Errorf("series %s: initial load: %w", s.Key(), err)
		err = s.loadErr
		s.mu.Unlock()
		return err
	}

	bars := sanitize(page.Bars)
	s.mu.Lock()
	s.bars = bars
	s.hasMore = page.HasMore
	s.loaded = true
	s.loadErr = nil
	if page.OldestTime != nil {
		s.oldestTime = *page.OldestTime
	} else if len(bars) > 0 {
		s.oldestTime = bars[0].Time
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// LoadOlder fetches the page strictly older than the current oldest bar and
// merges it at the front. Idempotent: merging the same page twice yields the
// same series. On failure pagination stops silently (hasMore becomes false)
// rather than retry-looping against a broken backend.
func (s *Store) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	if !s.loaded || !s.hasMore {
		s.mu.Unlock()
		return ErrNoMoreHistory
	}
	if s.paging {
		s.mu.Unlock()
		return nil
	}
	s.paging = true
	before := s.oldestTime
	s.mu.Unlock()

	page, err := s.fetcher.FetchBars(ctx, s.ticker, s.interval, before)

	s.mu.Lock()
	s.paging = false
	if err != nil {
		s.hasMore = false
		s.mu.Unlock()
		log.Printf("[series] %s: pagination stopped: %v", s.Key(), err)
		return fmt.Errorf("series %s: load older: %w", s.Key(), err)
	}
	s.mergeOlderLocked(page)
	s.mu.Unlock()

	s.notify()
	return nil
}

// mergeOlderLocked inserts an older page at the front, deduplicating by time
// with existing entries winning ties. Caller holds s.mu.
func (s *Store) mergeOlderLocked(page Page) {
	incoming := sanitize(page.Bars)
	if len(incoming) == 0 {
		s.hasMore = false
		return
	}

	existing := make(map[int64]bool, len(s.bars))
	for _, b := range s.bars {
		existing[b.Time] = true
	}

	merged := make([]model.Bar, 0, len(incoming)+len(s.bars))
	for _, b := range incoming {
		if !existing[b.Time] {
			merged = append(merged, b)
		}
	}
	added := len(merged)
	merged = append(merged, s.bars...)
	if !sort.SliceIsSorted(merged, func(i, j int) bool { return merged[i].Time < merged[j].Time }) {
		sort.Slice(merged, func(i, j int) bool { return merged[i].Time < merged[j].Time })
	}
	s.bars = merged

	// Loading the same page twice adds nothing; only a page with genuinely
	// new bars can move the pagination cursor.
	if added > 0 {
		if page.OldestTime != nil {
			s.oldestTime = *page.OldestTime
		} else {
			s.oldestTime = merged[0].Time
		}
		s.hasMore = page.HasMore
	}
}

// ApplyRealtime merges one push update. Same-time as the last bar replaces
// it in place (still-forming period); a newer time appends. A time matching
// an older historical bar replaces that bar; anything else is dropped so
// history is never reordered.
func (s *Store) ApplyRealtime(bar model.Bar) {
	if err := bar.Validate(); err != nil {
		log.Printf("[series] %s: rejected realtime bar: %v", s.Key(), err)
		return
	}

	s.mu.Lock()
	n := len(s.bars)
	switch {
	case n == 0:
		s.bars = append(s.bars, bar)
		s.oldestTime = bar.Time
	case bar.Time == s.bars[n-1].Time:
		s.bars[n-1] = bar
	case bar.Time > s.bars[n-1].Time:
		s.bars = append(s.bars, bar)
	default:
		// Out-of-order message: replace an existing bar if the time is
		// known, otherwise drop it. Appending would break the sort.
		i := sort.Search(n, func(i int) bool { return s.bars[i].Time >= bar.Time })
		if i < n && s.bars[i].Time == bar.Time {
			s.bars[i] = bar
		}
	}
	s.mu.Unlock()

	s.notify()
}

// SetVisibleRange records the visible logical index range and triggers
// backward pagination when the lower bound nears the loaded left edge. The
// trigger is a non-blocking signal; Run owns the actual fetch.
func (s *Store) SetVisibleRange(from, to float64) {
	s.mu.Lock()
	s.visibleFrom = from
	s.visibleTo = to
	trigger := s.loaded && s.hasMore && !s.paging && from < autoLoadThreshold
	s.mu.Unlock()

	if trigger {
		select {
		case s.olderCh <- struct{}{}:
		default:
		}
	}
}

// AwayFromLive reports whether the visible window is scrolled away from the
// newest bar (used to show a "return to live" affordance).
func (s *Store) AwayFromLive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return float64(len(s.bars))-s.visibleTo > liveTolerance
}

// VisibleRange returns the current visible logical index range.
func (s *Store) VisibleRange() (from, to float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibleFrom, s.visibleTo
}

// Run services auto-pagination signals until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.olderCh:
			if err := s.LoadOlder(ctx); err != nil && !errors.Is(err, ErrNoMoreHistory) {
				log.Printf("[series] %s: auto-pagination: %v", s.Key(), err)
			}
		}
	}
}

// Bars returns a copy of the series.
func (s *Store) Bars() []model.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Bar(nil), s.bars...)
}

// Times returns the sorted bar times (for the coordinate mapper).
func (s *Store) Times() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	times := make([]int64, len(s.bars))
	for i, b := range s.bars {
		times[i] = b.Time
	}
	return times
}

// Len returns the number of loaded bars.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars)
}

// LastBar returns the newest bar, if any.
func (s *Store) LastBar() (model.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return model.Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// OldestTime returns the current pagination cursor.
func (s *Store) OldestTime() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.oldestTime
}

// HasMore reports whether older history may still be available.
func (s *Store) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

// LoadError returns the retryable initial-load error, if any.
func (s *Store) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

func (s *Store) notify() {
	if s.OnChange != nil {
		s.OnChange()
	}
}

// sanitize drops malformed bars and enforces ascending unique times within a
// single page. A bad bar never discards the rest of its page.
func sanitize(bars []model.Bar) []model.Bar {
	out := make([]model.Bar, 0, len(bars))
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			log.Printf("[series] dropping malformed bar: %v", err)
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	dedup := out[:0]
	for i, b := range out {
		if i > 0 && b.Time == dedup[len(dedup)-1].Time {
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup
}
