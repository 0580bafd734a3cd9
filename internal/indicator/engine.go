package indicator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"chartengine/internal/model"
)

// Indicator type tags used in Spec.Type.
const (
	TypeSMA        = "SMA"
	TypeEMA        = "EMA"
	TypeRSI        = "RSI"
	TypeMACD       = "MACD"
	TypeStochastic = "STOCH"
	TypeADX        = "ADX"
	TypeATR        = "ATR"
	TypeBollinger  = "BB"
	TypeKeltner    = "KC"
	TypeVWAP       = "VWAP"
	TypeOBV        = "OBV"
	TypeRVOL       = "RVOL"
	TypeSqueeze    = "SQUEEZE"
)

// Spec names one requested indicator. Period is ignored by indicators with
// fixed or no periods (MACD, VWAP, OBV, SQUEEZE).
type Spec struct {
	Type   string `json:"type" yaml:"type"`
	Period int    `json:"period,omitempty" yaml:"period,omitempty"`
}

// Name returns the display key, e.g. "SMA_20" or "VWAP".
func (s Spec) Name() string {
	switch s.Type {
	case TypeMACD, TypeVWAP, TypeOBV, TypeSqueeze:
		return s.Type
	}
	return fmt.Sprintf("%s_%d", s.Type, s.Period)
}

// ParseSpec parses "SMA_20" style names back into a Spec.
func ParseSpec(name string) (Spec, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	parts := strings.SplitN(name, "_", 2)
	sp := Spec{Type: parts[0]}
	if len(parts) == 2 {
		if _, err := fmt.Sscanf(parts[1], "%d", &sp.Period); err != nil {
			return Spec{}, fmt.Errorf("indicator: bad spec %q", name)
		}
	}
	return sp, nil
}

// Validate reports whether the spec names a known indicator with a usable
// period.
func (s Spec) Validate() error {
	switch s.Type {
	case TypeSMA, TypeEMA, TypeRSI, TypeATR, TypeRVOL, TypeBollinger, TypeKeltner, TypeADX:
		if s.Period <= 0 {
			return fmt.Errorf("%s: %w", s.Type, ErrBadPeriod)
		}
	case TypeMACD, TypeStochastic, TypeVWAP, TypeOBV, TypeSqueeze:
	default:
		return fmt.Errorf("indicator: unknown type %q", s.Type)
	}
	return nil
}

// IsOverlay reports whether the indicator draws on the main price pane
// rather than in a sub-panel.
func (s Spec) IsOverlay() bool {
	switch s.Type {
	case TypeSMA, TypeEMA, TypeBollinger, TypeKeltner, TypeVWAP:
		return true
	}
	return false
}

// Request is one computation batch: a snapshot of the series plus the
// requested indicator set. The worker holds no shared state with the
// interaction side; the bars slice must not be mutated after submission.
type Request struct {
	Key   model.SeriesKey
	Bars  []model.Bar
	Specs []Spec
}

// BatchResult carries all computed indicators of one request. Results are
// derived, never mutated; a new request for the same key replaces them
// wholesale.
type BatchResult struct {
	Key   model.SeriesKey
	Epoch int64

	Lines   map[string]Series      `json:"lines"`
	Bands   map[string]*BandSeries `json:"bands"`
	MACD    *MACDSeries            `json:"macd,omitempty"`
	Stoch   *StochSeries           `json:"stoch,omitempty"`
	ADX     *ADXSeries             `json:"adx,omitempty"`
	Squeeze []SqueezePoint         `json:"squeeze,omitempty"`
}

// Engine runs indicator batches on a dedicated worker goroutine so heavy
// numeric loops never block drag/zoom handling. One in-flight batch per
// (ticker, interval); a superseding Submit bumps the key's epoch, and a
// finished batch whose epoch is stale is dropped instead of applied.
type Engine struct {
	mu      sync.Mutex
	pending map[model.SeriesKey]Request
	epochs  map[model.SeriesKey]int64
	cache   map[model.SeriesKey]*BatchResult
	wake    chan struct{}

	// OnResult fires on the worker goroutine after a fresh batch has been
	// cached.
	OnResult func(*BatchResult)
	// OnStale fires when a completed batch is discarded as stale.
	OnStale func(model.SeriesKey)
}

// NewEngine creates an idle engine; call Run to start the worker.
func NewEngine() *Engine {
	return &Engine{
		pending: make(map[model.SeriesKey]Request),
		epochs:  make(map[model.SeriesKey]int64),
		cache:   make(map[model.SeriesKey]*BatchResult),
		wake:    make(chan struct{}, 1),
	}
}

// Submit queues a batch, superseding any pending batch for the same key.
func (e *Engine) Submit(req Request) {
	e.mu.Lock()
	e.epochs[req.Key]++
	e.pending[req.Key] = req
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Invalidate drops the cached result for a key whose underlying data window
// changed shape. Realtime ticks don't need this: they re-Submit instead.
func (e *Engine) Invalidate(key model.SeriesKey) {
	e.mu.Lock()
	e.epochs[key]++
	delete(e.cache, key)
	e.mu.Unlock()
}

// Cached returns the cached batch for a key, if fresh.
func (e *Engine) Cached(key model.SeriesKey) (*BatchResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, ok := e.cache[key]
	return res, ok
}

// Run executes batches until ctx is cancelled. Single worker goroutine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		}
		for {
			req, epoch, ok := e.takePending()
			if !ok {
				break
			}
			res := computeBatch(req, epoch)
			e.apply(res)
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

func (e *Engine) takePending() (Request, int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, req := range e.pending {
		delete(e.pending, key)
		return req, e.epochs[key], true
	}
	return Request{}, 0, false
}

// apply caches a finished batch unless a newer request for the key has been
// submitted since; stale results are a pure cache miss, never a race.
func (e *Engine) apply(res *BatchResult) {
	e.mu.Lock()
	if e.epochs[res.Key] != res.Epoch {
		e.mu.Unlock()
		if e.OnStale != nil {
			e.OnStale(res.Key)
		}
		return
	}
	e.cache[res.Key] = res
	e.mu.Unlock()
	if e.OnResult != nil {
		e.OnResult(res)
	}
}

// computeBatch runs every requested indicator. A failure in one indicator
// leaves that result absent; the rest of the batch still returns.
func computeBatch(req Request, epoch int64) *BatchResult {
	res := &BatchResult{
		Key:   req.Key,
		Epoch: epoch,
		Lines: make(map[string]Series),
		Bands: make(map[string]*BandSeries),
	}
	for _, sp := range req.Specs {
		if err := computeOne(req.Bars, sp, res); err != nil {
			log.Printf("[indicator] %s: %s skipped: %v", req.Key, sp.Name(), err)
		}
	}
	return res
}

func computeOne(bars []model.Bar, sp Spec, res *BatchResult) error {
	switch sp.Type {
	case TypeSMA:
		s, err := SMA(bars, sp.Period)
		return setLine(res, sp, s, err)
	case TypeEMA:
		s, err := EMA(bars, sp.Period)
		return setLine(res, sp, s, err)
	case TypeRSI:
		s, err := RSI(bars, sp.Period)
		return setLine(res, sp, s, err)
	case TypeATR:
		s, err := ATR(bars, sp.Period)
		return setLine(res, sp, s, err)
	case TypeRVOL:
		s, err := RVOL(bars, sp.Period)
		return setLine(res, sp, s, err)
	case TypeVWAP:
		s, err := VWAP(bars)
		return setLine(res, sp, s, err)
	case TypeOBV:
		s, err := OBV(bars)
		return setLine(res, sp, s, err)
	case TypeMACD:
		m, err := MACD(bars, MACDFast, MACDSlow, MACDSignal)
		if err != nil {
			return err
		}
		res.MACD = m
	case TypeStochastic:
		period := sp.Period
		if period == 0 {
			period = StochKPeriod
		}
		s, err := Stochastic(bars, period, StochDPeriod)
		if err != nil {
			return err
		}
		res.Stoch = s
	case TypeADX:
		a, err := ADX(bars, sp.Period)
		if err != nil {
			return err
		}
		res.ADX = a
	case TypeBollinger:
		b, err := Bollinger(bars, sp.Period, BollingerMult)
		if err != nil {
			return err
		}
		if b != nil {
			res.Bands[sp.Name()] = b
		}
	case TypeKeltner:
		b, err := Keltner(bars, sp.Period, KeltnerMult)
		if err != nil {
			return err
		}
		if b != nil {
			res.Bands[sp.Name()] = b
		}
	case TypeSqueeze:
		s, err := Squeeze(bars, BollingerPeriod, BollingerMult, KeltnerPeriod, KeltnerMult)
		if err != nil {
			return err
		}
		res.Squeeze = s
	default:
		return fmt.Errorf("unknown indicator type %q", sp.Type)
	}
	return nil
}

func setLine(res *BatchResult, sp Spec, s Series, err error) error {
	if err != nil {
		return err
	}
	if s != nil {
		res.Lines[sp.Name()] = s
	}
	return nil
}
