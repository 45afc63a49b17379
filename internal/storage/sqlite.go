package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	// Register sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	"portfolioOptimizer/internal/optimizer"
)

// ErrNotFound is returned for unknown run ids.
var ErrNotFound = errors.New("not found")

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Close() error
}

// Store persists price series and optimization runs in SQLite.
type Store struct {
	db       DB
	priceTTL time.Duration
	now      func() time.Time
}

func OpenSQLite(dsn string) (DB, error) {
	return sql.Open("sqlite3", dsn)
}

func InitSchema(ctx context.Context, db DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prices(
			key TEXT PRIMARY KEY, points TEXT NOT NULL, fetched_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS runs(
			id TEXT PRIMARY KEY, created_at INTEGER NOT NULL, chat_id INTEGER,
			tickers TEXT NOT NULL, start_date TEXT NOT NULL, end_date TEXT NOT NULL,
			risk_aversion REAL NOT NULL, algorithm TEXT NOT NULL, status TEXT NOT NULL,
			objective REAL NOT NULL, volatility REAL NOT NULL, weights TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_created_at ON runs(created_at)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// NewStore wraps db. Cached price series expire after priceTTL unless the
// writer asks for a shorter lifetime; zero disables the default expiry.
func NewStore(db DB, priceTTL time.Duration) *Store {
	return &Store{db: db, priceTTL: priceTTL, now: time.Now}
}

type pricePoint struct {
	T int64   `json:"t"`
	C float64 `json:"c"`
}

func (s *Store) GetPrices(ctx context.Context, key string) ([]optimizer.PricePoint, bool, error) {
	var raw string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT points, expires_at FROM prices WHERE key=?`, key).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expiresAt > 0 && s.now().Unix() >= expiresAt {
		return nil, false, nil
	}
	var stored []pricePoint
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, false, fmt.Errorf("decode cached prices %s: %w", key, err)
	}
	out := make([]optimizer.PricePoint, len(stored))
	for i, p := range stored {
		out[i] = optimizer.PricePoint{Time: time.Unix(p.T, 0).UTC(), Close: p.C}
	}
	return out, true, nil
}

func (s *Store) PutPrices(ctx context.Context, key string, points []optimizer.PricePoint, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.priceTTL
	}
	now := s.now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).Unix()
	}
	stored := make([]pricePoint, len(points))
	for i, p := range points {
		stored[i] = pricePoint{T: p.Time.Unix(), C: p.Close}
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prices(key, points, fetched_at, expires_at) VALUES(?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET points=excluded.points, fetched_at=excluded.fetched_at, expires_at=excluded.expires_at`,
		key, string(raw), now.Unix(), expiresAt)
	return err
}

// RunRecord is one persisted optimization.
type RunRecord struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	ChatID       int64     `json:"chat_id,omitempty"`
	Tickers      []string  `json:"tickers"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	RiskAversion float64   `json:"risk_aversion"`
	Algorithm    string    `json:"algorithm"`
	Status       string    `json:"status"`
	Objective    float64   `json:"objective"`
	Volatility   float64   `json:"volatility"`
	Weights      []float64 `json:"weights"`
}

func (s *Store) SaveRun(ctx context.Context, r RunRecord) error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("save run: bad id %q: %w", r.ID, err)
	}
	weights, err := json.Marshal(r.Weights)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs(id, created_at, chat_id, tickers, start_date, end_date, risk_aversion, algorithm, status, objective, volatility, weights)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.CreatedAt.Unix(), r.ChatID, strings.Join(r.Tickers, ","),
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"),
		r.RiskAversion, r.Algorithm, r.Status, r.Objective, r.Volatility, string(weights))
	return err
}

const runColumns = `id, created_at, chat_id, tickers, start_date, end_date, risk_aversion, algorithm, status, objective, volatility, weights`

// ListRuns returns the latest runs, newest first. chatID 0 lists all chats.
func (s *Store) ListRuns(ctx context.Context, chatID int64, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if chatID != 0 {
		q += ` WHERE chat_id=?`
		args = append(args, chatID)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return RunRecord{}, ErrNotFound
	}
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var r RunRecord
	var created int64
	var chatID sql.NullInt64
	var tickers, start, end, weights string
	if err := sc.Scan(&r.ID, &created, &chatID, &tickers, &start, &end,
		&r.RiskAversion, &r.Algorithm, &r.Status, &r.Objective, &r.Volatility, &weights); err != nil {
		return RunRecord{}, err
	}
	r.CreatedAt = time.Unix(created, 0).UTC()
	r.ChatID = chatID.Int64
	if tickers != "" {
		r.Tickers = strings.Split(tickers, ",")
	}
	r.Start, _ = time.Parse("2006-01-02", start)
	r.End, _ = time.Parse("2006-01-02", end)
	if err := json.Unmarshal([]byte(weights), &r.Weights); err != nil {
		return RunRecord{}, fmt.Errorf("decode weights of run %s: %w", r.ID, err)
	}
	return r, nil
}

func (s *Store) Close() error { return s.db.Close() }
