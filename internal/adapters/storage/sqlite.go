package storage

// sqlite.go — persistencia del engine en SQLite (pure Go, sin CGo).
//
// Tres tablas:
//   - `trades`: ledger append-only, una fila por cierre (incluye cierres
//     parciales de steps). Nunca se actualiza ni se borra.
//   - `ladders`: snapshot JSON del estado de cada ladder activo, clave por
//     token. Se sobreescribe en cada mutación y se borra al cerrar.
//   - `market_locks`: slugs con ladder completado. El engine no vuelve a
//     entrar en un mercado lockeado hasta que un stop-out lo libera.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Ledger inmutable: una fila por cierre
CREATE TABLE IF NOT EXISTS trades (
    id          TEXT PRIMARY KEY,
    market_slug TEXT NOT NULL,
    token_id    TEXT NOT NULL,
    side        TEXT NOT NULL,
    entry_price REAL NOT NULL,
    exit_price  REAL NOT NULL,
    shares      REAL NOT NULL,
    entry_time  DATETIME NOT NULL,
    exit_time   DATETIME NOT NULL,
    exit_reason TEXT NOT NULL,
    pnl         REAL NOT NULL
);

-- Snapshot JSON del ladder activo, una fila por token
CREATE TABLE IF NOT EXISTS ladders (
    token_id   TEXT PRIMARY KEY,
    snapshot   TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);

-- Mercados con ladder completado
CREATE TABLE IF NOT EXISTS market_locks (
    market_slug TEXT PRIMARY KEY,
    locked_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_exit ON trades(exit_time DESC);
CREATE INDEX IF NOT EXISTS idx_trades_slug ON trades(market_slug);
`

// SQLiteStorage implementa ports.Storage usando SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica
// el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.ApplySchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// ApplySchema crea las tablas si no existen. Idempotente.
func (s *SQLiteStorage) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage.ApplySchema: %w", err)
	}
	return nil
}

// RecordTrade inserta una fila en el ledger. El id lo genera el engine.
func (s *SQLiteStorage) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, market_slug, token_id, side, entry_price, exit_price,
			 shares, entry_time, exit_time, exit_reason, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.MarketSlug, t.TokenID, t.Side, t.EntryPrice, t.ExitPrice,
		t.Shares, t.EntryTime.UTC(), t.ExitTime.UTC(), string(t.ExitReason), t.PnL,
	); err != nil {
		return fmt.Errorf("storage.RecordTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

// Trades devuelve los trades cuyo exit_time cae en el rango dado, en orden
// cronológico.
func (s *SQLiteStorage) Trades(ctx context.Context, from, to time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_slug, token_id, side, entry_price, exit_price,
		       shares, entry_time, exit_time, exit_reason, pnl
		FROM trades
		WHERE exit_time BETWEEN ? AND ?
		ORDER BY exit_time ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var reason string
		if err := rows.Scan(
			&t.ID, &t.MarketSlug, &t.TokenID, &t.Side, &t.EntryPrice, &t.ExitPrice,
			&t.Shares, &t.EntryTime, &t.ExitTime, &reason, &t.PnL,
		); err != nil {
			return nil, fmt.Errorf("storage.Trades: scan row: %w", err)
		}
		t.ExitReason = domain.ExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveLadder hace upsert del snapshot JSON del ladder.
func (s *SQLiteStorage) SaveLadder(ctx context.Context, ls domain.LadderState) error {
	snapshot, err := json.Marshal(ls)
	if err != nil {
		return fmt.Errorf("storage.SaveLadder: marshal %s: %w", ls.TokenID, err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO ladders (token_id, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			snapshot   = excluded.snapshot,
			updated_at = excluded.updated_at`,
		ls.TokenID, string(snapshot), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveLadder: upsert %s: %w", ls.TokenID, err)
	}
	return nil
}

// DeleteLadder elimina el snapshot del token dado. No falla si no existe.
func (s *SQLiteStorage) DeleteLadder(ctx context.Context, tokenID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM ladders WHERE token_id = ?`, tokenID,
	); err != nil {
		return fmt.Errorf("storage.DeleteLadder: %s: %w", tokenID, err)
	}
	return nil
}

// LoadLadders devuelve todos los snapshots persistidos. Se usa al arrancar
// para reconstruir el estado en memoria.
func (s *SQLiteStorage) LoadLadders(ctx context.Context) ([]domain.LadderState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token_id, snapshot FROM ladders`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadLadders: query: %w", err)
	}
	defer rows.Close()

	var states []domain.LadderState
	for rows.Next() {
		var tokenID, snapshot string
		if err := rows.Scan(&tokenID, &snapshot); err != nil {
			return nil, fmt.Errorf("storage.LoadLadders: scan row: %w", err)
		}
		var ls domain.LadderState
		if err := json.Unmarshal([]byte(snapshot), &ls); err != nil {
			return nil, fmt.Errorf("storage.LoadLadders: unmarshal %s: %w", tokenID, err)
		}
		states = append(states, ls)
	}
	return states, rows.Err()
}

// LockMarket marca el mercado como lockeado. Idempotente.
func (s *SQLiteStorage) LockMarket(ctx context.Context, slug string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO market_locks (market_slug, locked_at) VALUES (?, ?)
		ON CONFLICT(market_slug) DO NOTHING`,
		slug, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("storage.LockMarket: %s: %w", slug, err)
	}
	return nil
}

// UnlockMarket libera el lock del mercado. No falla si no existe.
func (s *SQLiteStorage) UnlockMarket(ctx context.Context, slug string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM market_locks WHERE market_slug = ?`, slug,
	); err != nil {
		return fmt.Errorf("storage.UnlockMarket: %s: %w", slug, err)
	}
	return nil
}

// LoadLocks devuelve los slugs lockeados.
func (s *SQLiteStorage) LoadLocks(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT market_slug FROM market_locks`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadLocks: query: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("storage.LoadLocks: scan row: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
