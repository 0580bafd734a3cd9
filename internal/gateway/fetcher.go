package gateway

import (
	"context"
	"log"
	"time"

	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/series"
	"chartengine/internal/store/sqlite"
)

// CachedFetcher layers the SQLite page cache over an upstream fetcher.
// Historical pages are immutable once a period closes, so only the
// most-recent page (before == 0) is given a short TTL.
type CachedFetcher struct {
	Upstream series.Fetcher
	Cache    *sqlite.Store

	// FreshFor bounds the age of a cached most-recent page. Zero means a
	// minute.
	FreshFor time.Duration

	// Metrics is optional.
	Metrics *metrics.Metrics
}

func NewCachedFetcher(upstream series.Fetcher, cache *sqlite.Store) *CachedFetcher {
	return &CachedFetcher{Upstream: upstream, Cache: cache, FreshFor: time.Minute}
}

func (f *CachedFetcher) FetchBars(ctx context.Context, ticker, interval string, before int64) (series.Page, error) {
	key := model.SeriesKey{Ticker: ticker, Interval: interval}

	if f.Cache != nil {
		maxAge := time.Duration(0) // older pages never go stale
		if before == 0 {
			maxAge = f.FreshFor
			if maxAge == 0 {
				maxAge = time.Minute
			}
		}
		if page, ok, err := f.Cache.LoadPage(key, before, maxAge); err != nil {
			log.Printf("[gateway] page cache read %s: %v", key, err)
		} else if ok {
			if f.Metrics != nil {
				f.Metrics.PageCacheHit.Inc()
			}
			return page, nil
		}
	}

	start := time.Now()
	page, err := f.Upstream.FetchBars(ctx, ticker, interval, before)
	if f.Metrics != nil {
		f.Metrics.FetchesTotal.Inc()
		f.Metrics.FetchDur.Observe(time.Since(start).Seconds())
		if err != nil {
			f.Metrics.FetchErrors.Inc()
		}
	}
	if err != nil {
		return series.Page{}, err
	}
	if f.Cache != nil {
		if err := f.Cache.SavePage(key, before, page); err != nil {
			log.Printf("[gateway] page cache write %s: %v", key, err)
		}
	}
	return page, nil
}
