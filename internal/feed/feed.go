// Package feed carries realtime bar updates over Redis PubSub. One channel
// per (ticker, interval); each message is a single bar plus the isNewBar
// flag. Subscribers apply messages one at a time, so the series store never
// sees concurrent merges.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartengine/internal/model"
)

const latestTTL = 30 * time.Minute

type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Feed wraps the Redis client used for both publish and subscribe.
type Feed struct {
	client *goredis.Client

	// OnReconnect is invoked each time a lost subscription retries.
	OnReconnect func()
}

// New connects and pings the Redis server.
func New(cfg Config) (*Feed, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("feed: redis ping: %w", err)
	}
	log.Printf("[feed] connected to %s", cfg.Addr)
	return &Feed{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (f *Feed) Client() *goredis.Client { return f.client }

// Publish pushes one bar update to its channel and refreshes the
// latest-bar key used for fast snapshots on connect.
func (f *Feed) Publish(ctx context.Context, upd model.BarUpdate) error {
	data, err := json.Marshal(upd)
	if err != nil {
		return fmt.Errorf("feed: marshal update: %w", err)
	}
	ch := upd.ChannelKey()
	pipe := f.client.Pipeline()
	pipe.Set(ctx, "latest:"+ch, data, latestTTL)
	pipe.Publish(ctx, ch, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("feed: publish %s: %w", ch, err)
	}
	return nil
}

// Latest returns the last published update for a key, if any.
func (f *Feed) Latest(ctx context.Context, key model.SeriesKey) (model.BarUpdate, bool, error) {
	raw, err := f.client.Get(ctx, "latest:bar:"+key.Ticker+":"+key.Interval).Bytes()
	if err == goredis.Nil {
		return model.BarUpdate{}, false, nil
	}
	if err != nil {
		return model.BarUpdate{}, false, fmt.Errorf("feed: latest %s: %w", key, err)
	}
	var upd model.BarUpdate
	if err := json.Unmarshal(raw, &upd); err != nil {
		return model.BarUpdate{}, false, fmt.Errorf("feed: latest %s: %w", key, err)
	}
	return upd, true, nil
}

// Subscribe consumes one key's channel until ctx is cancelled, invoking
// apply for every well-formed message. On connection loss it reconnects
// with exponential backoff and resumes from the next received message; no
// bars are synthesized for the gap.
func (f *Feed) Subscribe(ctx context.Context, key model.SeriesKey, apply func(model.BarUpdate)) {
	channel := "bar:" + key.Ticker + ":" + key.Interval
	backoff := time.Second
	for {
		if err := f.consume(ctx, channel, apply); err != nil {
			log.Printf("[feed] %s: subscription lost: %v (retry in %s)", channel, err, backoff)
			if f.OnReconnect != nil {
				f.OnReconnect()
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (f *Feed) consume(ctx context.Context, channel string, apply func(model.BarUpdate)) error {
	pubsub := f.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	// Confirm the subscription before trusting the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("channel closed")
			}
			var upd model.BarUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
				log.Printf("[feed] %s: dropping malformed message: %v", channel, err)
				continue
			}
			if err := upd.Bar.Validate(); err != nil {
				log.Printf("[feed] %s: dropping invalid bar: %v", channel, err)
				continue
			}
			apply(upd)
		}
	}
}

// Close closes the Redis client.
func (f *Feed) Close() error {
	return f.client.Close()
}
