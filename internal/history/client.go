// Package history fetches historical bars from the upstream market-data API.
// The upstream authenticates with a client code, password and a TOTP code
// generated from a shared secret; sessions expire and are renewed lazily on
// the first 401/403 response.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"chartengine/internal/model"
	"chartengine/internal/series"
)

// DefaultPageSize is the number of bars requested per page.
const DefaultPageSize = 300

type Config struct {
	BaseURL    string
	ClientCode string
	Password   string
	TOTPSecret string

	Timeout  time.Duration // default 7s
	PageSize int           // default DefaultPageSize
}

// Client talks to the upstream bar API. It implements series.Fetcher.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *CircuitBreaker

	mu    sync.Mutex
	token string

	// now is swappable for TOTP tests.
	now func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	cb := NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to State) {
		log.Printf("[history] upstream circuit %s -> %s", from, to)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: cb,
		now:     time.Now,
	}
}

type loginResponse struct {
	Status bool `json:"status"`
	Data   struct {
		AccessToken string `json:"access_token"`
	} `json:"data"`
	Message string `json:"message"`
}

// login generates a fresh TOTP code and exchanges it for a session token.
func (c *Client) login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, c.now())
	if err != nil {
		return fmt.Errorf("history: totp generation: %w", err)
	}
	body, _ := json.Marshal(map[string]string{
		"client_code": c.cfg.ClientCode,
		"password":    c.cfg.Password,
		"totp":        code,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("history: login: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var lr loginResponse
	if err := json.Unmarshal(raw, &lr); err != nil {
		return fmt.Errorf("history: login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !lr.Status || lr.Data.AccessToken == "" {
		return fmt.Errorf("history: login rejected (%d): %s", resp.StatusCode, lr.Message)
	}

	c.mu.Lock()
	c.token = lr.Data.AccessToken
	c.mu.Unlock()
	return nil
}

// wireBar uses pointer fields so a bar with a missing OHLC field can be
// rejected on its own without discarding the rest of the page.
type wireBar struct {
	Time   *int64   `json:"time"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *float64 `json:"volume"`
}

type barsResponse struct {
	Data       []wireBar `json:"data"`
	OldestTime *int64    `json:"oldest_time"`
	HasMore    bool      `json:"has_more"`
}

// FetchBars requests one page of bars. before == 0 means the most recent
// page; otherwise the page strictly older than that timestamp. Calls run
// through the circuit breaker so a dead upstream fails fast.
func (c *Client) FetchBars(ctx context.Context, ticker, interval string, before int64) (series.Page, error) {
	var page series.Page
	err := c.breaker.Execute(func() error {
		p, err := c.fetchPage(ctx, ticker, interval, before)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	return page, err
}

func (c *Client) fetchPage(ctx context.Context, ticker, interval string, before int64) (series.Page, error) {
	q := url.Values{}
	q.Set("ticker", ticker)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(c.cfg.PageSize))
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	resp, err := c.get(ctx, "/api/v1/bars?"+q.Encode(), true)
	if err != nil {
		return series.Page{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return series.Page{}, fmt.Errorf("history: read bars: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return series.Page{}, fmt.Errorf("history: bars request failed (%d)", resp.StatusCode)
	}
	var br barsResponse
	if err := json.Unmarshal(raw, &br); err != nil {
		return series.Page{}, fmt.Errorf("history: bars response: %w", err)
	}

	page := series.Page{OldestTime: br.OldestTime, HasMore: br.HasMore}
	for _, w := range br.Data {
		b, ok := w.toBar()
		if !ok {
			continue
		}
		page.Bars = append(page.Bars, b)
	}
	return page, nil
}

// get issues an authenticated GET, logging in lazily and retrying once when
// the session token has expired.
func (c *Client) get(ctx context.Context, path string, retryAuth bool) (*http.Response, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		token = c.token
		c.mu.Unlock()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history: request %s: %w", path, err)
	}
	if (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && retryAuth {
		resp.Body.Close()
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return c.get(ctx, path, false)
	}
	return resp, nil
}

// SearchSymbols queries the upstream symbol directory. The upstream matches
// the query against ticker and company name.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]model.Symbol, error) {
	var symbols []model.Symbol
	err := c.breaker.Execute(func() error {
		q := url.Values{}
		q.Set("q", query)
		resp, err := c.get(ctx, "/api/v1/symbols?"+q.Encode(), true)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("history: read symbols: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("history: symbol search failed (%d)", resp.StatusCode)
		}
		var sr struct {
			Data []model.Symbol `json:"data"`
		}
		if err := json.Unmarshal(raw, &sr); err != nil {
			return fmt.Errorf("history: symbols response: %w", err)
		}
		symbols = sr.Data
		return nil
	})
	return symbols, err
}

func (w wireBar) toBar() (model.Bar, bool) {
	if w.Time == nil || w.Open == nil || w.High == nil || w.Low == nil || w.Close == nil {
		return model.Bar{}, false
	}
	b := model.Bar{
		Time: *w.Time,
		Open: *w.Open, High: *w.High, Low: *w.Low, Close: *w.Close,
	}
	if w.Volume != nil {
		b.Volume = *w.Volume
	}
	return b, b.Validate() == nil
}
