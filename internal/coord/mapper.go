package coord

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// gapWindow bounds how many trailing bar gaps feed the median-gap policy.
const gapWindow = 32

// irregularRatio is the deviation factor beyond which the last gap is
// considered irregular (weekend/holiday boundary) and the median gap is used
// for extrapolation instead.
const irregularRatio = 1.5

// Mapper converts bar times to pixel X and back, delegating to the chart's
// native scale inside the plotted range and extrapolating beyond the newest
// bar. Stateless given (times, scale); rebuild per pointer event.
type Mapper struct {
	times []int64
	scale Scale
}

// NewMapper creates a mapper over sorted unique bar times.
func NewMapper(times []int64, scale Scale) *Mapper {
	return &Mapper{times: times, scale: scale}
}

// TimeToPixelX converts a time to a pixel X. Times inside the loaded range
// use the native scale; times beyond the newest bar are extrapolated using
// the series gap. Times before the oldest loaded bar report false, as does a
// series with fewer than two bars: anchors left of the loaded history keep a
// stored logical index and are placed through LogicalToPixelX instead.
func (m *Mapper) TimeToPixelX(t int64) (float64, bool) {
	n := len(m.times)
	if n < 2 {
		return 0, false
	}
	last := m.times[n-1]
	if t <= last {
		return m.scale.TimeToX(t)
	}
	xLast, ok := m.scale.TimeToX(last)
	if !ok {
		return 0, false
	}
	gap := m.extrapolationGap()
	if gap <= 0 {
		return 0, false
	}
	return xLast + float64(t-last)/gap*m.scale.BarSpacing(), true
}

// PixelToTime is the inverse of TimeToPixelX: native conversion within the
// plotted range, gap extrapolation to the right of the newest bar.
func (m *Mapper) PixelToTime(x float64) (int64, bool) {
	n := len(m.times)
	if n < 2 {
		return 0, false
	}
	if t, ok := m.scale.XToTime(x); ok {
		return t, true
	}
	last := m.times[n-1]
	xLast, ok := m.scale.TimeToX(last)
	if !ok {
		return 0, false
	}
	spacing := m.scale.BarSpacing()
	if x <= xLast || spacing <= 0 {
		return 0, false
	}
	gap := m.extrapolationGap()
	if gap <= 0 {
		return 0, false
	}
	return last + int64(math.Round((x-xLast)/spacing*gap)), true
}

// TimeRange returns the first and last loaded bar times.
func (m *Mapper) TimeRange() (first, last int64, ok bool) {
	if len(m.times) == 0 {
		return 0, 0, false
	}
	return m.times[0], m.times[len(m.times)-1], true
}

// LogicalToPixelX converts a logical bar index to a pixel X via the native
// scale. Used for drawing points anchored in index space.
func (m *Mapper) LogicalToPixelX(lg float64) (float64, bool) {
	if m.scale == nil {
		return 0, false
	}
	return m.scale.LogicalToX(lg), true
}

// LogicalForTime returns the (fractional) logical index of a time: exact or
// interpolated inside the series, gap-extrapolated beyond the newest bar.
// Drawing points that land outside the loaded range keep this value so their
// placement survives a pagination reshaping the series.
func (m *Mapper) LogicalForTime(t int64) (float64, bool) {
	n := len(m.times)
	if n < 2 {
		return 0, false
	}
	last := m.times[n-1]
	if t > last {
		gap := m.extrapolationGap()
		if gap <= 0 {
			return 0, false
		}
		return float64(n-1) + float64(t-last)/gap, true
	}
	if t < m.times[0] {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return m.times[i] >= t })
	if m.times[i] == t {
		return float64(i), true
	}
	span := float64(m.times[i] - m.times[i-1])
	return float64(i-1) + float64(t-m.times[i-1])/span, true
}

// extrapolationGap picks the time gap used for placement beyond the newest
// bar. Uniformly spaced series use the last gap; when the last gap deviates
// from the trailing median by more than irregularRatio (overnight or weekend
// boundaries on daily bars), the median wins. Both mapping directions share
// this value, which keeps round-tripping exact.
func (m *Mapper) extrapolationGap() float64 {
	n := len(m.times)
	lastGap := float64(m.times[n-1] - m.times[n-2])
	if lastGap <= 0 {
		return 0
	}
	start := n - 1 - gapWindow
	if start < 1 {
		start = 1
	}
	gaps := make([]float64, 0, n-start)
	for i := start; i < n; i++ {
		gaps = append(gaps, float64(m.times[i]-m.times[i-1]))
	}
	if len(gaps) < 3 {
		return lastGap
	}
	median, err := stats.Median(gaps)
	if err != nil || median <= 0 {
		return lastGap
	}
	if lastGap > median*irregularRatio || lastGap < median/irregularRatio {
		return median
	}
	return lastGap
}

// PriceScale is a linear price axis for one pane: Top maps to y=0 and
// Bottom to y=Height.
type PriceScale struct {
	Top    float64
	Bottom float64
	Height float64
}

// PriceToY converts a price to a pixel Y.
func (p PriceScale) PriceToY(price float64) (float64, bool) {
	span := p.Top - p.Bottom
	if span == 0 || p.Height <= 0 {
		return 0, false
	}
	return (p.Top - price) / span * p.Height, true
}

// YToPrice converts a pixel Y back to a price.
func (p PriceScale) YToPrice(y float64) (float64, bool) {
	if p.Height <= 0 {
		return 0, false
	}
	return p.Top - y/p.Height*(p.Top-p.Bottom), true
}
