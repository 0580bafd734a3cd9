package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"chartengine/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the WebSocket and REST routes on the mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, processStart time.Time) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWS(conn)
	})

	// REST: one page of historical bars, in the same shape the session's
	// fetcher consumes: {data, oldest_time, has_more}.
	mux.HandleFunc("/api/bars", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		ticker := r.URL.Query().Get("ticker")
		interval := r.URL.Query().Get("interval")
		if ticker == "" || interval == "" {
			http.Error(w, `{"error":"ticker and interval are required"}`, http.StatusBadRequest)
			return
		}
		var before int64
		if s := r.URL.Query().Get("before"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				http.Error(w, `{"error":"bad before timestamp"}`, http.StatusBadRequest)
				return
			}
			before = v
		}

		page, err := hub.Fetcher.FetchBars(r.Context(), ticker, interval, before)
		if err != nil {
			log.Printf("[gateway] /api/bars %s:%s: %v", ticker, interval, err)
			http.Error(w, `{"error":"fetch failed"}`, http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data":        page.Bars,
			"oldest_time": page.OldestTime,
			"has_more":    page.HasMore,
		})
	})

	// REST: persisted drawings per ticker. DELETE clears the collection.
	mux.HandleFunc("/api/drawings", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		ticker := r.URL.Query().Get("ticker")
		if ticker == "" {
			http.Error(w, `{"error":"ticker is required"}`, http.StatusBadRequest)
			return
		}
		if hub.Store == nil {
			http.Error(w, `{"error":"persistence disabled"}`, http.StatusServiceUnavailable)
			return
		}

		switch r.Method {
		case http.MethodGet:
			drawings, err := hub.Store.LoadDrawings(ticker)
			if err != nil {
				http.Error(w, `{"error":"load failed"}`, http.StatusInternalServerError)
				return
			}
			if drawings == nil {
				drawings = []model.Drawing{}
			}
			json.NewEncoder(w).Encode(drawings)
		case http.MethodDelete:
			if err := hub.Store.ClearDrawings(ticker); err != nil {
				http.Error(w, `{"error":"clear failed"}`, http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		default:
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		}
	})

	// REST: symbol search against the upstream directory.
	mux.HandleFunc("/api/symbols", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		query := r.URL.Query().Get("q")
		if query == "" {
			http.Error(w, `{"error":"q is required"}`, http.StatusBadRequest)
			return
		}
		if hub.Symbols == nil {
			http.Error(w, `{"error":"symbol search unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		symbols, err := hub.Symbols.SearchSymbols(r.Context(), query)
		if err != nil {
			log.Printf("[gateway] /api/symbols %q: %v", query, err)
			http.Error(w, `{"error":"search failed"}`, http.StatusBadGateway)
			return
		}
		if symbols == nil {
			symbols = []model.Symbol{}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": symbols})
	})

	// REST: replay of missed bar envelopes after a sequence gap.
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		channel := r.URL.Query().Get("channel")
		from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		to, _ := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if channel == "" || from <= 0 || to < from {
			http.Error(w, `{"error":"channel, from and to are required"}`, http.StatusBadRequest)
			return
		}

		envelopes := hub.ReplayRange(channel, from, to)
		w.Write([]byte(`{"channel_seq":`))
		w.Write([]byte(strconv.FormatInt(hub.ChannelSeq(channel), 10)))
		w.Write([]byte(`,"envelopes":[`))
		for i, env := range envelopes {
			if i > 0 {
				w.Write([]byte{','})
			}
			w.Write(env)
		}
		w.Write([]byte("]}"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		p50, p95, p99 := hub.Latency.Percentiles()
		json.NewEncoder(w).Encode(map[string]any{
			"status":       "ok",
			"ws_clients":   hub.ClientCount(),
			"uptime_sec":   int64(time.Since(processStart).Seconds()),
			"event_ms_p50": p50,
			"event_ms_p95": p95,
			"event_ms_p99": p99,
			"ts":           time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
