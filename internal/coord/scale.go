// Package coord converts between bar time / logical index and on-screen
// pixels, including extrapolation past the newest bar. Mappers are cheap
// value types: callers rebuild them from the current view on every pointer
// event, so pixel positions always reflect the live zoom/scroll state.
package coord

import "sort"

// Scale is the chart's native coordinate conversion, valid only for
// positions within the plotted bar range. The Mapper layers extrapolation on
// top of it.
type Scale interface {
	// TimeToX converts a time within the plotted range to a pixel X.
	TimeToX(t int64) (float64, bool)
	// XToTime converts a pixel X within the plotted range to a time.
	XToTime(x float64) (int64, bool)
	// BarSpacing returns the current horizontal pixels per bar.
	BarSpacing() float64
	// LogicalToX converts a (possibly fractional) logical bar index to a
	// pixel X. Valid for any index, including ones outside the series.
	LogicalToX(lg float64) float64
	// XToLogical is the inverse of LogicalToX.
	XToLogical(x float64) float64
}

// TimeScale is a linear logical-index scale over a loaded bar series:
// x = (logical(t) - viewFrom) * spacing. Times between two bars map to a
// fractional logical index by interpolation, so XToTime and TimeToX are
// mutual inverses everywhere inside the range.
type TimeScale struct {
	times    []int64
	viewFrom float64 // logical index rendered at x = 0
	spacing  float64 // pixels per bar
}

// NewTimeScale creates a scale over sorted unique bar times.
func NewTimeScale(times []int64, viewFrom, spacing float64) *TimeScale {
	return &TimeScale{times: times, viewFrom: viewFrom, spacing: spacing}
}

// BarSpacing returns pixels per bar.
func (s *TimeScale) BarSpacing() float64 { return s.spacing }

// LogicalToX converts a logical bar index to a pixel X.
func (s *TimeScale) LogicalToX(lg float64) float64 {
	return (lg - s.viewFrom) * s.spacing
}

// XToLogical converts a pixel X to a logical bar index.
func (s *TimeScale) XToLogical(x float64) float64 {
	if s.spacing <= 0 {
		return 0
	}
	return s.viewFrom + x/s.spacing
}

// TimeToX converts a time inside [first, last] to a pixel X.
func (s *TimeScale) TimeToX(t int64) (float64, bool) {
	lg, ok := s.logicalFor(t)
	if !ok {
		return 0, false
	}
	return (lg - s.viewFrom) * s.spacing, true
}

// XToTime converts a pixel X back to a time, as long as the implied logical
// index lies inside the loaded series.
func (s *TimeScale) XToTime(x float64) (int64, bool) {
	if s.spacing <= 0 || len(s.times) == 0 {
		return 0, false
	}
	lg := s.viewFrom + x/s.spacing
	n := len(s.times)
	if lg < 0 || lg > float64(n-1) {
		return 0, false
	}
	i := int(lg)
	if i >= n-1 {
		return s.times[n-1], true
	}
	frac := lg - float64(i)
	span := float64(s.times[i+1] - s.times[i])
	return s.times[i] + int64(frac*span+0.5), true
}

// logicalFor returns the (possibly fractional) logical index of a time
// within the loaded range.
func (s *TimeScale) logicalFor(t int64) (float64, bool) {
	n := len(s.times)
	if n == 0 || t < s.times[0] || t > s.times[n-1] {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return s.times[i] >= t })
	if s.times[i] == t {
		return float64(i), true
	}
	// Between bars i-1 and i.
	span := float64(s.times[i] - s.times[i-1])
	return float64(i-1) + float64(t-s.times[i-1])/span, true
}
