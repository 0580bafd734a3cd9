package model

// Symbol describes one chartable instrument as returned by the upstream
// symbol directory.
type Symbol struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Type     string `json:"type"` // stock, index, etf, crypto
}

// Key returns a unique key for this symbol: "exchange:ticker".
func (s *Symbol) Key() string {
	return s.Exchange + ":" + s.Ticker
}
