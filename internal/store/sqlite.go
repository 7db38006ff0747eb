// Package store persists executed hedge trades to SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"grid_hedger/internal/core"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS hedge_trades (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	executed_at     INTEGER NOT NULL,
	primary_symbol  TEXT    NOT NULL,
	hedge_symbol    TEXT    NOT NULL,
	side            TEXT    NOT NULL,
	size            TEXT    NOT NULL,
	primary_price   TEXT    NOT NULL,
	hedge_price     TEXT    NOT NULL,
	latency_ms      INTEGER NOT NULL,
	fees            TEXT    NOT NULL DEFAULT '0'
);
CREATE INDEX IF NOT EXISTS idx_hedge_trades_executed_at ON hedge_trades (executed_at);
`

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the trade database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveTrade implements core.TradeStore
func (s *SQLiteStore) SaveTrade(ctx context.Context, trade core.TradeRecord) error {
	query := `INSERT INTO hedge_trades
		(executed_at, primary_symbol, hedge_symbol, side, size, primary_price, hedge_price, latency_ms, fees)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		trade.Timestamp.UnixNano(),
		trade.PrimarySymbol,
		trade.HedgeSymbol,
		string(trade.Side),
		trade.Size.String(),
		trade.PrimaryPrice.String(),
		trade.HedgePrice.String(),
		trade.Latency.Milliseconds(),
		trade.Fees.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to write trade to db: %w", err)
	}
	return nil
}

// TradesSince returns trades executed at or after the given instant, oldest
// first.
func (s *SQLiteStore) TradesSince(ctx context.Context, since time.Time) ([]core.TradeRecord, error) {
	query := `SELECT executed_at, primary_symbol, hedge_symbol, side, size, primary_price, hedge_price, latency_ms, fees
		FROM hedge_trades WHERE executed_at >= ? ORDER BY executed_at ASC`
	rows, err := s.db.QueryContext(ctx, query, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to read trades from db: %w", err)
	}
	defer rows.Close()

	var trades []core.TradeRecord
	for rows.Next() {
		var (
			executedAt int64
			side       string
			latencyMs  int64
			size       string
			primaryPx  string
			hedgePx    string
			fees       string
			trade      core.TradeRecord
		)
		if err := rows.Scan(&executedAt, &trade.PrimarySymbol, &trade.HedgeSymbol,
			&side, &size, &primaryPx, &hedgePx, &latencyMs, &fees); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trade.Timestamp = time.Unix(0, executedAt)
		trade.Side = core.Side(side)
		trade.Latency = time.Duration(latencyMs) * time.Millisecond
		if trade.Size, err = decimal.NewFromString(size); err != nil {
			return nil, fmt.Errorf("corrupt size %q: %w", size, err)
		}
		if trade.PrimaryPrice, err = decimal.NewFromString(primaryPx); err != nil {
			return nil, fmt.Errorf("corrupt primary price %q: %w", primaryPx, err)
		}
		if trade.HedgePrice, err = decimal.NewFromString(hedgePx); err != nil {
			return nil, fmt.Errorf("corrupt hedge price %q: %w", hedgePx, err)
		}
		if trade.Fees, err = decimal.NewFromString(fees); err != nil {
			return nil, fmt.Errorf("corrupt fees %q: %w", fees, err)
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// Ping reports database reachability for health checks
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
