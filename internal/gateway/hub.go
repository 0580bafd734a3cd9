// Package gateway serves browser clients over WebSocket. Each client owns a
// chart session: pointer, tool and view events flow into the drawing state
// machine, and bar, drawing and indicator updates stream back as JSON
// envelopes with per-channel sequence numbers.
package gateway

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chartengine/internal/drawing"
	"chartengine/internal/indicator"
	"chartengine/internal/logger"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/series"
	"chartengine/internal/store/sqlite"
)

// BarFeed is the realtime push source. Satisfied by *feed.Feed.
type BarFeed interface {
	Subscribe(ctx context.Context, key model.SeriesKey, apply func(model.BarUpdate))
}

// SymbolSearcher is the upstream symbol directory. Satisfied by
// *history.Client.
type SymbolSearcher interface {
	SearchSymbols(ctx context.Context, query string) ([]model.Symbol, error)
}

// Hub manages WebSocket clients, shared feed subscriptions and fan-out.
// One feed subscription exists per active (ticker, interval) regardless of
// how many clients watch it.
type Hub struct {
	Fetcher  series.Fetcher
	Feed     BarFeed
	Store    *sqlite.Store
	Defaults drawing.Defaults

	// Symbols is optional; /api/symbols answers 503 when unset.
	Symbols SymbolSearcher

	// Presets supplies the default indicator set for an interval; sessions
	// apply it on symbol selection until the client picks its own set.
	Presets func(interval string) []indicator.Spec

	// Metrics is optional; counters are skipped when unset.
	Metrics *metrics.Metrics

	// OnBar is an optional observer for every realtime update, used by the
	// binary to track feed freshness.
	OnBar func(model.BarUpdate)

	// Latency tracks event-handling time percentiles for /healthz.
	Latency *LatencyTracker

	mu          sync.RWMutex
	clients     map[*Client]bool
	watchers    map[model.SeriesKey]map[*Client]bool
	feedCancels map[model.SeriesKey]context.CancelFunc
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	ctx context.Context
}

// NewHub creates a hub. ctx bounds every feed subscription it spawns.
func NewHub(ctx context.Context, fetcher series.Fetcher, barFeed BarFeed, store *sqlite.Store, defaults drawing.Defaults) *Hub {
	return &Hub{
		Fetcher:     fetcher,
		Feed:        barFeed,
		Store:       store,
		Defaults:    defaults,
		Latency:     NewLatencyTracker(10000),
		clients:     make(map[*Client]bool),
		watchers:    make(map[model.SeriesKey]map[*Client]bool),
		feedCancels: make(map[model.SeriesKey]context.CancelFunc),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		ctx:         ctx,
	}
}

// HandleWS registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWS(conn *websocket.Conn) {
	client := h.register(newClient(h, conn))

	conn.EnableWriteCompression(true)

	go client.writePump()
	go client.readPump()
}

// register adds a client and starts its session on a connection-scoped
// context, so removeClient tears the session goroutine down with the peer.
func (h *Hub) register(client *Client) *Client {
	client.trace = logger.NewTraceID("conn", time.Now())
	ctx, cancel := context.WithCancel(logger.WithTraceID(h.ctx, client.trace))
	client.cancel = cancel

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total) trace=%s", count, client.trace)
	if h.Metrics != nil {
		h.Metrics.WSClients.Set(float64(count))
	}

	go client.session.Run(ctx)
	return client
}

// removeClient drops a client: the session goroutine stops with the
// connection context and the write pump is released through c.done. c.send
// stays open so a session event still in flight lands in the buffer instead
// of a closed channel.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	if h.Metrics != nil {
		h.Metrics.WSClients.Set(float64(count))
	}
	c.session.Close()
	if c.cancel != nil {
		c.cancel()
	}
	close(c.done)
}

// Watch points a client at a series key, subscribing to the feed on the
// first watcher. The previous key, if any, is released first.
func (h *Hub) Watch(c *Client, key model.SeriesKey) {
	if c == nil {
		return
	}
	h.Unwatch(c)
	if h.Feed == nil {
		return
	}

	h.mu.Lock()
	set, ok := h.watchers[key]
	if !ok {
		set = make(map[*Client]bool)
		h.watchers[key] = set
	}
	set[c] = true
	c.watching = &key
	start := !ok
	if start {
		ctx, cancel := context.WithCancel(h.ctx)
		h.feedCancels[key] = cancel
		go h.Feed.Subscribe(ctx, key, func(upd model.BarUpdate) { h.onBarUpdate(key, upd) })
	}
	h.mu.Unlock()

	if start {
		log.Printf("[gateway] feed subscription started for %s", key)
	}
}

// Unwatch releases a client's series watch, cancelling the feed
// subscription when the last watcher leaves.
func (h *Hub) Unwatch(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.watching == nil {
		return
	}
	key := *c.watching
	c.watching = nil
	set := h.watchers[key]
	delete(set, c)
	if len(set) == 0 {
		delete(h.watchers, key)
		if cancel := h.feedCancels[key]; cancel != nil {
			cancel()
			delete(h.feedCancels, key)
		}
		log.Printf("[gateway] feed subscription stopped for %s", key)
	}
}

// onBarUpdate fans a realtime bar out to every watcher: the raw envelope
// goes straight to the socket, and the session merges the bar into its
// series off the hot path.
func (h *Hub) onBarUpdate(key model.SeriesKey, upd model.BarUpdate) {
	if h.Metrics != nil {
		h.Metrics.RealtimeBarsTotal.Inc()
	}
	if h.OnBar != nil {
		h.OnBar(upd)
	}
	data := upd.Bar.JSON()
	channel := upd.ChannelKey()

	h.mu.Lock()
	h.channelSeqs[channel]++
	seq := h.channelSeqs[channel]
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(500)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	// Hand-crafted envelope: this runs once per tick per active series.
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"isNewBar":`...)
	buf = strconv.AppendBool(buf, upd.IsNewBar)
	buf = append(buf, `,"ts":"`...)
	buf = time.Now().UTC().AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","channel_seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	rb.Push(seq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.watchers[key] {
		select {
		case c.send <- buf:
		default:
		}
		c.session.EnqueueBar(upd)
	}
}

// ReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq],
// serving the /api/missed gap-backfill endpoint.
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return rb.Range(fromSeq, toSeq)
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
