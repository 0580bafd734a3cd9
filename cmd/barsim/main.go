// cmd/barsim — Demo realtime bar publisher.
// Random-walks a set of tickers and publishes forming/closed bars over the
// Redis feed, so chartserver can be exercised without upstream credentials.
//
// Config (env vars):
//
//	REDIS_ADDR         — Redis address               (default: "localhost:6379")
//	REDIS_PASSWORD     — Redis password              (default: "")
//	SIM_TICKERS        — comma-separated TICKER:PRICE pairs (default: "ACME:150")
//	SIM_INTERVAL       — bar interval                (default: "1min")
//	SIM_TICK_MS        — price update cadence, ms    (default: "500")
//	MARKET_HOURS_ONLY  — publish only while the market trades (default: "false")
package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"chartengine/internal/feed"
	"chartengine/internal/markethours"
	"chartengine/internal/model"
)

// instrument holds per-ticker simulation state: the walking price and the
// currently forming bar.
type instrument struct {
	Ticker  string
	Price   float64
	Forming *model.Bar
}

// walkPrice applies a tiny random walk (±0.1%) per update.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 0.01 {
		next = 0.01
	}
	return next
}

// step folds one price update into the forming bar, rolling the bucket over
// at interval boundaries. Returns the update to publish.
func (ins *instrument) step(interval string, bucket time.Duration, now time.Time) model.BarUpdate {
	ins.Price = walkPrice(ins.Price)
	bucketStart := now.Truncate(bucket).Unix()

	isNew := ins.Forming == nil || ins.Forming.Time != bucketStart
	if isNew {
		ins.Forming = &model.Bar{
			Time: bucketStart,
			Open: ins.Price, High: ins.Price, Low: ins.Price, Close: ins.Price,
		}
	} else {
		if ins.Price > ins.Forming.High {
			ins.Forming.High = ins.Price
		}
		if ins.Price < ins.Forming.Low {
			ins.Forming.Low = ins.Price
		}
		ins.Forming.Close = ins.Price
	}
	ins.Forming.Volume += float64(rand.Intn(100) + 1)

	return model.BarUpdate{
		Ticker:   ins.Ticker,
		Interval: interval,
		Bar:      *ins.Forming,
		IsNewBar: isNew,
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[barsim] starting demo bar publisher...")

	interval := envOrDefault("SIM_INTERVAL", "1min")
	bucket, ok := model.IntervalDuration(interval)
	if !ok {
		log.Fatalf("[barsim] unknown interval %q", interval)
	}
	tickMs := envIntOrDefault("SIM_TICK_MS", 500)
	hoursOnly := strings.EqualFold(os.Getenv("MARKET_HOURS_ONLY"), "true")

	instruments := parseInstruments(envOrDefault("SIM_TICKERS", "ACME:150"))
	if len(instruments) == 0 {
		log.Fatalf("[barsim] no tickers configured via SIM_TICKERS")
	}

	f, err := feed.New(feed.Config{
		Addr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
		Password: envOrDefault("REDIS_PASSWORD", ""),
	})
	if err != nil {
		log.Fatalf("[barsim] feed init failed: %v", err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("[barsim] publishing %d tickers at %s bars, tick every %dms (market hours only: %v)",
		len(instruments), interval, tickMs, hoursOnly)
	if hoursOnly {
		log.Printf("[barsim] %s", markethours.StatusString(time.Now()))
	}

	ticker := time.NewTicker(time.Duration(tickMs) * time.Millisecond)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if hoursOnly && !markethours.IsMarketOpen(now) {
					continue
				}
				for i := range instruments {
					upd := instruments[i].step(interval, bucket, now.UTC())
					if err := f.Publish(ctx, upd); err != nil {
						log.Printf("[barsim] publish %s: %v", upd.Ticker, err)
					}
				}
			}
		}
	}()

	<-sigCh
	log.Println("[barsim] shutting down")
}

// parseInstruments parses "TICKER:PRICE,TICKER:PRICE" pairs.
func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seg := strings.SplitN(part, ":", 2)
		ins := instrument{Ticker: strings.ToUpper(strings.TrimSpace(seg[0])), Price: 100}
		if len(seg) == 2 {
			if p, err := strconv.ParseFloat(strings.TrimSpace(seg[1]), 64); err == nil && p > 0 {
				ins.Price = p
			} else {
				log.Printf("[barsim] skipping invalid price in %q", part)
				continue
			}
		}
		if ins.Ticker == "" {
			continue
		}
		result = append(result, ins)
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
