package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_market_pulse/internal/domain"
)

// maxCachedEntries bounds the snapshot payload written per currency.
const maxCachedEntries = 90

type SQLiteStore struct {
	db      *sql.DB
	timeNow func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, timeNow: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS snapshot_cache (
			currency TEXT PRIMARY KEY,
			fetched_at DATETIME NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			coin_id TEXT NOT NULL,
			type TEXT NOT NULL,
			op TEXT NOT NULL,
			value REAL NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_coin ON alerts(coin_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SnapshotCache implementation

func (s *SQLiteStore) Put(ctx context.Context, snap *domain.Snapshot) error {
	entries := snap.Entries
	if len(entries) > maxCachedEntries {
		entries = entries[:maxCachedEntries]
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	query := `INSERT INTO snapshot_cache (currency, fetched_at, payload) VALUES (?, ?, ?)
			  ON CONFLICT(currency) DO UPDATE SET fetched_at = excluded.fetched_at, payload = excluded.payload`
	_, err = s.db.ExecContext(ctx, query, snap.Currency, snap.FetchedAt, payload)
	return err
}

// Get returns the cached snapshot for a currency, or (nil, nil) when the
// entry is missing, older than ttl, or unreadable. A corrupt payload is
// a cache miss, never an error.
func (s *SQLiteStore) Get(ctx context.Context, currency string, ttl time.Duration) (*domain.Snapshot, error) {
	query := `SELECT fetched_at, payload FROM snapshot_cache WHERE currency = ?`
	row := s.db.QueryRowContext(ctx, query, currency)

	var fetchedAt time.Time
	var payload []byte
	if err := row.Scan(&fetchedAt, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if s.timeNow().Sub(fetchedAt) >= ttl {
		return nil, nil
	}

	var entries []domain.MarketEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, nil
	}

	return &domain.Snapshot{
		Currency:  currency,
		FetchedAt: fetchedAt,
		Entries:   entries,
	}, nil
}

// AlertRepository implementation

func (s *SQLiteStore) SaveAlert(ctx context.Context, a *domain.Alert) error {
	query := `INSERT INTO alerts (id, coin_id, type, op, value, enabled, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.CoinID, string(a.Type), string(a.Op), a.Value, a.Enabled, a.CreatedAt)
	return err
}

func (s *SQLiteStore) UpdateAlert(ctx context.Context, a *domain.Alert) error {
	query := `UPDATE alerts SET coin_id = ?, type = ?, op = ?, value = ?, enabled = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		a.CoinID, string(a.Type), string(a.Op), a.Value, a.Enabled, a.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %s not found", a.ID)
	}
	return nil
}

func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	query := `SELECT id, coin_id, type, op, value, enabled, created_at FROM alerts WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %s not found", id)
	}
	return a, err
}

func (s *SQLiteStore) ListAlerts(ctx context.Context) ([]*domain.Alert, error) {
	query := `SELECT id, coin_id, type, op, value, enabled, created_at FROM alerts ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteStore) DeleteAlert(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var typ, op string
	if err := row.Scan(&a.ID, &a.CoinID, &typ, &op, &a.Value, &a.Enabled, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Type = domain.AlertType(typ)
	a.Op = domain.AlertOp(op)
	return &a, nil
}
