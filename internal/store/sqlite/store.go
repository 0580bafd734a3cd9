// Package sqlite persists per-ticker drawing collections and caches
// historical bar pages. Single-writer WAL database, upsert-by-primary-key.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chartengine/internal/model"
	"chartengine/internal/series"
)

type Config struct {
	DBPath string // e.g. "data/chart.db"
}

// Store owns the SQLite database.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer discipline.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS drawings (
			ticker     TEXT    NOT NULL,
			id         TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (ticker, id)
		);

		CREATE TABLE IF NOT EXISTS bar_pages (
			ticker     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			before_ts  INTEGER NOT NULL,
			data       TEXT    NOT NULL,
			oldest_ts  INTEGER,
			has_more   INTEGER NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (ticker, interval, before_ts)
		);
	`)
	return err
}

// SaveDrawing upserts one drawing. Insertion order is preserved in seq so a
// reload renders (and hit-tests) in the original creation order.
func (s *Store) SaveDrawing(ticker string, d model.Drawing) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("sqlite save drawing: %w", err)
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("sqlite marshal drawing: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO drawings (ticker, id, seq, data, updated_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM drawings WHERE ticker = ?), ?, ?)
		ON CONFLICT (ticker, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, ticker, d.ID, ticker, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite upsert drawing: %w", err)
	}
	return nil
}

// LoadDrawings returns a ticker's drawings in creation order.
func (s *Store) LoadDrawings(ticker string) ([]model.Drawing, error) {
	rows, err := s.db.Query(`SELECT data FROM drawings WHERE ticker = ? ORDER BY seq ASC`, ticker)
	if err != nil {
		return nil, fmt.Errorf("sqlite query drawings: %w", err)
	}
	defer rows.Close()

	var out []model.Drawing
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan drawing: %w", err)
		}
		var d model.Drawing
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			// One corrupt row must not take the whole collection down.
			log.Printf("[sqlite] skipping corrupt drawing row for %s: %v", ticker, err)
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDrawing removes one drawing; deleting an unknown id is a no-op.
func (s *Store) DeleteDrawing(ticker, id string) error {
	if _, err := s.db.Exec(`DELETE FROM drawings WHERE ticker = ? AND id = ?`, ticker, id); err != nil {
		return fmt.Errorf("sqlite delete drawing: %w", err)
	}
	return nil
}

// ClearDrawings removes every drawing for a ticker.
func (s *Store) ClearDrawings(ticker string) error {
	if _, err := s.db.Exec(`DELETE FROM drawings WHERE ticker = ?`, ticker); err != nil {
		return fmt.Errorf("sqlite clear drawings: %w", err)
	}
	return nil
}

// ReplaceDrawings atomically swaps a ticker's collection, keeping the order
// of the given slice.
func (s *Store) ReplaceDrawings(ticker string, drawings []model.Drawing) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM drawings WHERE ticker = ?`, ticker); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite replace drawings: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO drawings (ticker, id, seq, data, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	now := time.Now().Unix()
	for i, d := range drawings {
		data, err := json.Marshal(d)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite marshal drawing: %w", err)
		}
		if _, err := stmt.Exec(ticker, d.ID, i+1, string(data), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert drawing: %w", err)
		}
	}
	return tx.Commit()
}

// SavePage caches one fetched bar page keyed by its pagination cursor
// (before_ts 0 = the most-recent page).
func (s *Store) SavePage(key model.SeriesKey, before int64, page series.Page) error {
	data, err := json.Marshal(page.Bars)
	if err != nil {
		return fmt.Errorf("sqlite marshal page: %w", err)
	}
	var oldest sql.NullInt64
	if page.OldestTime != nil {
		oldest = sql.NullInt64{Int64: *page.OldestTime, Valid: true}
	}
	hasMore := 0
	if page.HasMore {
		hasMore = 1
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO bar_pages (ticker, interval, before_ts, data, oldest_ts, has_more, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, key.Ticker, key.Interval, before, string(data), oldest, hasMore, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite upsert page: %w", err)
	}
	return nil
}

// LoadPage returns a cached page no older than maxAge, if present.
func (s *Store) LoadPage(key model.SeriesKey, before int64, maxAge time.Duration) (series.Page, bool, error) {
	var (
		data      string
		oldest    sql.NullInt64
		hasMore   int
		fetchedAt int64
	)
	err := s.db.QueryRow(`
		SELECT data, oldest_ts, has_more, fetched_at FROM bar_pages
		WHERE ticker = ? AND interval = ? AND before_ts = ?
	`, key.Ticker, key.Interval, before).Scan(&data, &oldest, &hasMore, &fetchedAt)
	if err == sql.ErrNoRows {
		return series.Page{}, false, nil
	}
	if err != nil {
		return series.Page{}, false, fmt.Errorf("sqlite read page: %w", err)
	}
	if maxAge > 0 && time.Since(time.Unix(fetchedAt, 0)) > maxAge {
		return series.Page{}, false, nil
	}

	var page series.Page
	if err := json.Unmarshal([]byte(data), &page.Bars); err != nil {
		return series.Page{}, false, fmt.Errorf("sqlite unmarshal page: %w", err)
	}
	if oldest.Valid {
		v := oldest.Int64
		page.OldestTime = &v
	}
	page.HasMore = hasMore == 1
	return page, true, nil
}

// PrunePages drops cached pages fetched before the cutoff.
func (s *Store) PrunePages(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).Unix()
	if _, err := s.db.Exec(`DELETE FROM bar_pages WHERE fetched_at < ?`, cutoff); err != nil {
		return fmt.Errorf("sqlite prune pages: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
