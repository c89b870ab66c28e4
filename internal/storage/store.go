// Package storage persists the portfolio snapshot and trade journal to
// sqlite so durable runs can resume a session.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/omkale/finpup/internal/portfolio"
)

// PersistedState is the durable snapshot read back on startup. A missing
// snapshot is a fresh start, not an error.
type PersistedState struct {
	Cash           float64              `json:"cash"`
	InitialCapital float64              `json:"initial_capital"`
	RiskProfile    string               `json:"risk_profile"`
	Positions      []portfolio.Position `json:"positions"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			cash REAL NOT NULL,
			initial_capital REAL NOT NULL,
			risk_profile TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS positions (
			symbol TEXT PRIMARY KEY,
			quantity INTEGER NOT NULL,
			avg_cost REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			reason TEXT NOT NULL DEFAULT ''
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveState atomically replaces the persisted snapshot.
func (s *Store) SaveState(state PersistedState) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO state (id, cash, initial_capital, risk_profile, updated_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   cash = excluded.cash,
		   initial_capital = excluded.initial_capital,
		   risk_profile = excluded.risk_profile,
		   updated_at = excluded.updated_at`,
		state.Cash, state.InitialCapital, state.RiskProfile,
		state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("save state row: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for _, pos := range state.Positions {
		if _, err := tx.Exec(
			`INSERT INTO positions (symbol, quantity, avg_cost) VALUES (?, ?, ?)`,
			pos.Symbol, pos.Quantity, pos.AvgCost,
		); err != nil {
			return fmt.Errorf("save position %s: %w", pos.Symbol, err)
		}
	}

	return tx.Commit()
}

// LoadState reads back the persisted snapshot. Returns (nil, nil) when no
// snapshot has been written yet.
func (s *Store) LoadState() (*PersistedState, error) {
	var (
		state     PersistedState
		updatedAt string
	)
	err := s.db.QueryRow(
		`SELECT cash, initial_capital, risk_profile, updated_at FROM state WHERE id = 1`,
	).Scan(&state.Cash, &state.InitialCapital, &state.RiskProfile, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state row: %w", err)
	}
	if ts, perr := time.Parse(time.RFC3339Nano, updatedAt); perr == nil {
		state.UpdatedAt = ts
	}

	rows, err := s.db.Query(`SELECT symbol, quantity, avg_cost FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pos portfolio.Position
		if err := rows.Scan(&pos.Symbol, &pos.Quantity, &pos.AvgCost); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		state.Positions = append(state.Positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &state, nil
}

// AppendTrade adds one trade to the journal.
func (s *Store) AppendTrade(t portfolio.Trade) error {
	_, err := s.db.Exec(
		`INSERT INTO trades (ts, symbol, side, quantity, price, realized_pnl, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Timestamp.UTC().Format(time.RFC3339Nano),
		t.Symbol, string(t.Side), t.Quantity, t.Price, t.RealizedPnL, t.Reason,
	)
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// Trades returns the most recent trades, newest first. limit <= 0 returns
// all of them.
func (s *Store) Trades(limit int) ([]portfolio.Trade, error) {
	query := `SELECT ts, symbol, side, quantity, price, realized_pnl, reason
		  FROM trades ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []portfolio.Trade
	for rows.Next() {
		var (
			t    portfolio.Trade
			ts   string
			side string
		)
		if err := rows.Scan(&ts, &t.Symbol, &side, &t.Quantity, &t.Price, &t.RealizedPnL, &t.Reason); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if parsed, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			t.Timestamp = parsed
		}
		t.Side = portfolio.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClearTrades wipes the journal (used by capital resets).
func (s *Store) ClearTrades() error {
	_, err := s.db.Exec(`DELETE FROM trades`)
	return err
}
