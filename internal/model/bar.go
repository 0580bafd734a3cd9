package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bar represents one OHLCV sample for a fixed time bucket.
// Time is the bucket start in Unix seconds (UTC). Within a series, times are
// strictly increasing with no duplicates.
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Validate checks structural invariants of a single bar. A bar with a zero
// timestamp or negative volume is considered malformed and must be rejected
// without discarding the rest of its page.
func (b Bar) Validate() error {
	if b.Time <= 0 {
		return fmt.Errorf("bar: invalid time %d", b.Time)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar: negative volume %f at time %d", b.Volume, b.Time)
	}
	if b.High < b.Low {
		return fmt.Errorf("bar: high %f below low %f at time %d", b.High, b.Low, b.Time)
	}
	return nil
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// BarUpdate is one realtime push message: a single bar plus whether it opens
// a new bucket or refreshes the still-forming one.
type BarUpdate struct {
	Ticker   string `json:"ticker"`
	Interval string `json:"interval"`
	Bar      Bar    `json:"bar"`
	IsNewBar bool   `json:"is_new_bar"`
}

// ChannelKey returns the push channel key: "bar:{ticker}:{interval}".
func (u BarUpdate) ChannelKey() string {
	return "bar:" + u.Ticker + ":" + u.Interval
}

// IntervalDuration maps an interval name to its bucket length. The second
// return is false for unknown intervals.
func IntervalDuration(interval string) (time.Duration, bool) {
	switch interval {
	case "1min":
		return time.Minute, true
	case "5min":
		return 5 * time.Minute, true
	case "15min":
		return 15 * time.Minute, true
	case "30min":
		return 30 * time.Minute, true
	case "1hour":
		return time.Hour, true
	case "4hour":
		return 4 * time.Hour, true
	case "1day":
		return 24 * time.Hour, true
	case "1week":
		return 7 * 24 * time.Hour, true
	}
	return 0, false
}

// SeriesKey identifies one loaded bar series.
type SeriesKey struct {
	Ticker   string
	Interval string
}

func (k SeriesKey) String() string {
	return k.Ticker + ":" + k.Interval
}
