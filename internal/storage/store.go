package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store is the SQLite archive of fetch runs, their records and notification deliveries.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS runs (
  id           TEXT PRIMARY KEY,
  started_at   TIMESTAMP NOT NULL,
  finished_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chain_runs (
  run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  position        INTEGER NOT NULL,
  chain           TEXT NOT NULL,
  native_symbol   TEXT NOT NULL,
  transfers       INTEGER NOT NULL,
  pages           INTEGER NOT NULL,
  failed_pages    INTEGER NOT NULL,
  skipped_events  INTEGER NOT NULL,
  truncated       INTEGER NOT NULL,
  total_usd       TEXT NOT NULL,
  total_fee       TEXT NOT NULL,
  total_gas_fee   TEXT NOT NULL,
  unique_senders  INTEGER NOT NULL,
  PRIMARY KEY(run_id, chain)
);

CREATE TABLE IF NOT EXISTS transfers (
  run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  seq              INTEGER NOT NULL,
  chain            TEXT NOT NULL,
  id               TEXT NOT NULL,
  sender           TEXT NOT NULL,
  type             TEXT NOT NULL,
  amount_usd       TEXT NOT NULL,
  block_timestamp  INTEGER NOT NULL,
  PRIMARY KEY(run_id, seq)
);

CREATE TABLE IF NOT EXISTS gas_fees (
  run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  seq              INTEGER NOT NULL,
  chain            TEXT NOT NULL,
  id               TEXT NOT NULL,
  sender           TEXT NOT NULL,
  type             TEXT NOT NULL,
  fee_native       TEXT NOT NULL,
  fee_gas_native   TEXT NOT NULL,
  native_symbol    TEXT NOT NULL,
  block_timestamp  INTEGER NOT NULL,
  PRIMARY KEY(run_id, seq)
);

CREATE TABLE IF NOT EXISTS deliveries (
  run_id        TEXT NOT NULL,
  sink_id       TEXT NOT NULL,
  status        TEXT NOT NULL,
  response_code INTEGER,
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(run_id, sink_id)
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Run is one archived fetch run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Chains     []ChainRun
}

// NewRun starts a run record with a fresh id.
func NewRun(started time.Time) Run {
	return Run{ID: uuid.NewString(), StartedAt: started.UTC()}
}

// Truncated reports whether any chain stopped on a failed page.
func (r Run) Truncated() bool {
	for _, c := range r.Chains {
		if c.Truncated {
			return true
		}
	}
	return false
}

// ChainRun is the per-chain outcome stored with a run.
type ChainRun struct {
	Chain         cctp.Chain
	NativeSymbol  string
	Transfers     int
	Pages         int
	FailedPages   int
	SkippedEvents int
	Truncated     bool
	TotalUSD      decimal.Decimal
	TotalFee      decimal.Decimal
	TotalGasFee   decimal.Decimal
	UniqueSenders uint64
}

// SaveRun stores a run, its chain stats and every record in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, data cctp.Dataset) error {
	if run.ID == "" {
		return errors.New("run id required")
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (id, started_at, finished_at) VALUES (?, ?, ?);
`, run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC()); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for i, c := range run.Chains {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO chain_runs (run_id, position, chain, native_symbol, transfers, pages, failed_pages,
  skipped_events, truncated, total_usd, total_fee, total_gas_fee, unique_senders)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, run.ID, i, string(c.Chain), c.NativeSymbol, c.Transfers, c.Pages, c.FailedPages,
				c.SkippedEvents, c.Truncated, c.TotalUSD.String(), c.TotalFee.String(), c.TotalGasFee.String(),
				int64(c.UniqueSenders)); err != nil {
				return fmt.Errorf("insert chain run %s: %w", c.Chain, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO transfers (run_id, seq, chain, id, sender, type, amount_usd, block_timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`)
		if err != nil {
			return fmt.Errorf("prepare transfers: %w", err)
		}
		defer stmt.Close()
		for i, t := range data.Transfers {
			if _, err := stmt.ExecContext(ctx, run.ID, i, string(t.Chain), t.ID, t.From, string(t.Type),
				t.AmountUSD.String(), t.BlockTimestamp); err != nil {
				return fmt.Errorf("insert transfer %s: %w", t.ID, err)
			}
		}

		gasStmt, err := tx.PrepareContext(ctx, `
INSERT INTO gas_fees (run_id, seq, chain, id, sender, type, fee_native, fee_gas_native, native_symbol, block_timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`)
		if err != nil {
			return fmt.Errorf("prepare gas fees: %w", err)
		}
		defer gasStmt.Close()
		for i, g := range data.GasFees {
			if _, err := gasStmt.ExecContext(ctx, run.ID, i, string(g.Chain), g.ID, g.From, string(g.Type),
				g.FeeNative.String(), g.FeeGasNative.String(), g.NativeSymbol, g.BlockTimestamp); err != nil {
				return fmt.Errorf("insert gas fee %s: %w", g.ID, err)
			}
		}
		return nil
	})
}

// ListRuns returns archived runs with their chain stats, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, finished_at FROM runs ORDER BY started_at DESC, id LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close runs: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for i := range runs {
		if runs[i].Chains, err = s.chainRuns(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) chainRuns(ctx context.Context, runID string) ([]ChainRun, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chain, native_symbol, transfers, pages, failed_pages, skipped_events, truncated,
  total_usd, total_fee, total_gas_fee, unique_senders
FROM chain_runs WHERE run_id = ? ORDER BY position;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query chain runs: %w", err)
	}
	defer rows.Close()

	var out []ChainRun
	for rows.Next() {
		var (
			c             ChainRun
			chain         string
			usd, fee, gas string
			senders       int64
		)
		if err := rows.Scan(&chain, &c.NativeSymbol, &c.Transfers, &c.Pages, &c.FailedPages,
			&c.SkippedEvents, &c.Truncated, &usd, &fee, &gas, &senders); err != nil {
			return nil, fmt.Errorf("scan chain run: %w", err)
		}
		c.Chain = cctp.Chain(chain)
		c.UniqueSenders = uint64(senders)
		if c.TotalUSD, err = decimal.NewFromString(usd); err != nil {
			return nil, fmt.Errorf("chain %s total_usd: %w", chain, err)
		}
		if c.TotalFee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("chain %s total_fee: %w", chain, err)
		}
		if c.TotalGasFee, err = decimal.NewFromString(gas); err != nil {
			return nil, fmt.Errorf("chain %s total_gas_fee: %w", chain, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestRunID returns the most recently started run.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY started_at DESC, id LIMIT 1;`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return id, nil
}

// LoadRun returns the records of a run in insertion order.
func (s *Store) LoadRun(ctx context.Context, runID string) (cctp.Dataset, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?;`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return cctp.Dataset{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return cctp.Dataset{}, fmt.Errorf("find run: %w", err)
	}

	var data cctp.Dataset
	if data.Transfers, err = s.loadTransfers(ctx, runID); err != nil {
		return cctp.Dataset{}, err
	}
	if data.GasFees, err = s.loadGasFees(ctx, runID); err != nil {
		return cctp.Dataset{}, err
	}
	return data, nil
}

func (s *Store) loadTransfers(ctx context.Context, runID string) ([]cctp.TransferRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chain, id, sender, type, amount_usd, block_timestamp FROM transfers WHERE run_id = ? ORDER BY seq;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var out []cctp.TransferRecord
	for rows.Next() {
		var (
			t           cctp.TransferRecord
			chain, kind string
			amount      string
		)
		if err := rows.Scan(&chain, &t.ID, &t.From, &kind, &amount, &t.BlockTimestamp); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		t.Chain, t.Type = cctp.Chain(chain), cctp.EventType(kind)
		if t.AmountUSD, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transfer %s amount: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) loadGasFees(ctx context.Context, runID string) ([]cctp.GasFeeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chain, id, sender, type, fee_native, fee_gas_native, native_symbol, block_timestamp
FROM gas_fees WHERE run_id = ? ORDER BY seq;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query gas fees: %w", err)
	}
	defer rows.Close()

	var out []cctp.GasFeeRecord
	for rows.Next() {
		var (
			g           cctp.GasFeeRecord
			chain, kind string
			fee, gas    string
		)
		if err := rows.Scan(&chain, &g.ID, &g.From, &kind, &fee, &gas, &g.NativeSymbol, &g.BlockTimestamp); err != nil {
			return nil, fmt.Errorf("scan gas fee: %w", err)
		}
		g.Chain, g.Type = cctp.Chain(chain), cctp.EventType(kind)
		if g.FeeNative, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("gas fee %s fee: %w", g.ID, err)
		}
		if g.FeeGasNative, err = decimal.NewFromString(gas); err != nil {
			return nil, fmt.Errorf("gas fee %s gas fee: %w", g.ID, err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Delivery records a run-summary notification attempt.
type Delivery struct {
	RunID        string
	SinkID       string
	Status       string
	ResponseCode int
	CreatedAt    time.Time
}

// InsertDelivery records a sink delivery attempt; primary key enforces one row per run/sink.
func (s *Store) InsertDelivery(ctx context.Context, d Delivery) error {
	if d.RunID == "" || d.SinkID == "" || d.Status == "" {
		return errors.New("run_id, sink_id, and status are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries (run_id, sink_id, status, response_code, created_at)
VALUES (?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`, d.RunID, d.SinkID, d.Status, d.ResponseCode, nullTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
