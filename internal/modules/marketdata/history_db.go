// Package marketdata derives asset parameters and correlation matrices from
// daily close history, backed by a local SQLite store and Yahoo Finance.
package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/rs/zerolog"
)

// DailyPrice is one daily close
type DailyPrice struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// HistoryDB provides access to stored daily closes
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// UpsertDailyPrices writes prices for ticker in one transaction and records
// the sync time. Existing rows for the same date are overwritten.
func (h *HistoryDB) UpsertDailyPrices(ticker string, prices []DailyPrice) error {
	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_prices (ticker, date, close)
			VALUES (?, ?, ?)
			ON CONFLICT(ticker, date) DO UPDATE SET close = excluded.close
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if _, err := stmt.Exec(ticker, dayStart(p.Date).Unix(), p.Close); err != nil {
				return fmt.Errorf("failed to upsert %s %s: %w", ticker, p.Date.Format("2006-01-02"), err)
			}
		}

		_, err = tx.Exec(`
			INSERT INTO price_sync (ticker, synced_at, row_count)
			VALUES (?, ?, ?)
			ON CONFLICT(ticker) DO UPDATE SET synced_at = excluded.synced_at, row_count = excluded.row_count
		`, ticker, time.Now().Unix(), len(prices))
		if err != nil {
			return fmt.Errorf("failed to record sync for %s: %w", ticker, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.log.Debug().Str("ticker", ticker).Int("rows", len(prices)).Msg("Stored daily prices")
	return nil
}

// GetDailyCloses returns up to limit most recent closes for ticker, ordered
// oldest first.
func (h *HistoryDB) GetDailyCloses(ticker string, limit int) ([]DailyPrice, error) {
	rows, err := h.db.Query(`
		SELECT date, close FROM (
			SELECT date, close
			FROM daily_prices
			WHERE ticker = ?
			ORDER BY date DESC
			LIMIT ?
		) ORDER BY date ASC
	`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var dateUnix int64
		var p DailyPrice
		if err := rows.Scan(&dateUnix, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC()
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// LastSync returns when ticker was last written, and false if never.
func (h *HistoryDB) LastSync(ticker string) (time.Time, bool, error) {
	var syncedAt int64
	err := h.db.QueryRow("SELECT synced_at FROM price_sync WHERE ticker = ?", ticker).Scan(&syncedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last sync for %s: %w", ticker, err)
	}
	return time.Unix(syncedAt, 0).UTC(), true, nil
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
