/*
Package sqlite provides the SQLite-backed persistence of the calculation engine.

PURPOSE:
  Everything the engine keeps between requests lives here: an audit log of
  every calculation (input and result as JSON), the administrative appends
  made to the reference tables, and live index tables cached by exact range.

INTERFACES IMPLEMENTED:
  index.TableCache: persistent cache of live rate tables

APPEND-ONLY ENFORCEMENT:
  - calculations: INSERT only; a calculation is never edited after the fact
  - reference_values: one row per (kind, year, month); a later append for the
    same month replaces the amount, mirroring reference.Table.Append
  - rate_tables: keyed by the exact (index, start, end) triple

KEY TABLES:
  calculations:     Audit log (uuid id, kind, status, input/result JSON)
  reference_values: Minimum wage / ceiling breakpoints added at runtime
  rate_tables:      Live monthly rate tables

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers do not block the
  single writer.

USAGE:
  store, err := sqlite.New("./data/legalcalc.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  provider := index.NewProvider(fetcher, index.WithTableCache(store))

SEE ALSO:
  - index/provider.go: TableCache consumer
  - reference/table.go: Append semantics replayed by ReplayReference
*/
package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/jurisflow/calc-engine/generic"
	"github.com/jurisflow/calc-engine/index"
	"github.com/jurisflow/calc-engine/reference"
)

// timestampLayout has a fixed width so created_at sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the engine's persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open database")
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate database")
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Calculations (append-only audit log)
	CREATE TABLE IF NOT EXISTS calculations (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		claimant_name TEXT,
		input_json TEXT NOT NULL,
		result_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calculations_created_at
		ON calculations(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_calculations_kind
		ON calculations(kind, created_at DESC);

	-- Reference table appends, replayed at start
	CREATE TABLE IF NOT EXISTS reference_values (
		kind TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (kind, year, month)
	);

	-- Live index tables by exact range
	CREATE TABLE IF NOT EXISTS rate_tables (
		cache_key TEXT PRIMARY KEY,
		requested TEXT NOT NULL,
		applied TEXT NOT NULL,
		table_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CALCULATION AUDIT LOG
// =============================================================================

// CalculationRecord is one stored calculation.
type CalculationRecord struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Status       string          `json:"status"`
	ClaimantName string          `json:"claimant_name,omitempty"`
	Input        json.RawMessage `json:"input"`
	Result       json.RawMessage `json:"result"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SaveCalculation stores a calculation and returns it with its id and
// timestamp filled in.
func (s *Store) SaveCalculation(ctx context.Context, rec CalculationRecord) (CalculationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO calculations (id, kind, status, claimant_name, input_json, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Kind, rec.Status, nullString(rec.ClaimantName),
		string(rec.Input), string(rec.Result),
		rec.CreatedAt.Format(timestampLayout),
	)
	if err != nil {
		return CalculationRecord{}, eris.Wrap(err, "sqlite: save calculation")
	}
	return rec, nil
}

// GetCalculation retrieves a calculation by id. A missing id returns
// generic.ErrNotFound.
func (s *Store) GetCalculation(ctx context.Context, id string) (*CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, status, claimant_name, input_json, result_json, created_at
		FROM calculations WHERE id = ?`, id)

	rec, err := scanCalculation(row)
	if err == sql.ErrNoRows {
		return nil, generic.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get calculation %s", id)
	}
	return &rec, nil
}

// ListCalculations returns the most recent calculations, newest first. An
// empty kind lists every kind.
func (s *Store) ListCalculations(ctx context.Context, kind string, limit int) ([]CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, kind, status, claimant_name, input_json, result_json, created_at
		FROM calculations
		WHERE (? = '' OR kind = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, kind, kind, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list calculations")
	}
	defer rows.Close()

	records := []CalculationRecord{}
	for rows.Next() {
		rec, err := scanCalculation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan calculation")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCalculation(row scanner) (CalculationRecord, error) {
	var rec CalculationRecord
	var claimant sql.NullString
	var input, result, createdAt string
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Status, &claimant, &input, &result, &createdAt); err != nil {
		return CalculationRecord{}, err
	}
	rec.ClaimantName = claimant.String
	rec.Input = json.RawMessage(input)
	rec.Result = json.RawMessage(result)
	rec.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
	return rec, nil
}

// =============================================================================
// REFERENCE VALUES
// =============================================================================

// ReferenceValue is an administrative breakpoint append.
type ReferenceValue struct {
	Kind   reference.Kind  `json:"kind"`
	Year   int             `json:"year"`
	Month  time.Month      `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// SaveReferenceValue persists an append. A later append for the same month
// replaces the amount.
func (s *Store) SaveReferenceValue(ctx context.Context, v ReferenceValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO reference_values (kind, year, month, amount, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, year, month) DO UPDATE SET
			amount = excluded.amount,
			created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(v.Kind), v.Year, int(v.Month), v.Amount.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: save reference value")
	}
	return nil
}

// ListReferenceValues returns every stored append in (kind, year, month) order.
func (s *Store) ListReferenceValues(ctx context.Context) ([]ReferenceValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, year, month, amount FROM reference_values ORDER BY kind, year, month")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reference values")
	}
	defer rows.Close()

	var values []ReferenceValue
	for rows.Next() {
		var v ReferenceValue
		var kind, amount string
		var month int
		if err := rows.Scan(&kind, &v.Year, &month, &amount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reference value")
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: reference value %s %d/%d", kind, month, v.Year)
		}
		v.Kind = reference.Kind(kind)
		v.Month = time.Month(month)
		v.Amount = d
		values = append(values, v)
	}
	return values, rows.Err()
}

// ReplayReference applies every stored append to the table and returns how
// many were applied.
func (s *Store) ReplayReference(ctx context.Context, table *reference.Table) (int, error) {
	values, err := s.ListReferenceValues(ctx)
	if err != nil {
		return 0, err
	}
	for i, v := range values {
		if err := table.Append(v.Kind, v.Year, v.Month, v.Amount); err != nil {
			return i, eris.Wrapf(err, "sqlite: replay %s %d/%d", v.Kind, v.Month, v.Year)
		}
	}
	return len(values), nil
}

// =============================================================================
// RATE TABLES (index.TableCache interface)
// =============================================================================

var _ index.TableCache = (*Store)(nil)

// GetRateTable returns the stored table for a key, or nil when absent.
func (s *Store) GetRateTable(ctx context.Context, key string) (*index.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT table_json FROM rate_tables WHERE cache_key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get rate table %s", key)
	}

	var table index.RateTable
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode rate table %s", key)
	}
	return &table, nil
}

// PutRateTable stores a table under its exact-range key.
func (s *Store) PutRateTable(ctx context.Context, key string, table *index.RateTable) error {
	raw, err := json.Marshal(table)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode rate table")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO rate_tables (cache_key, requested, applied, table_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			table_json = excluded.table_json,
			created_at = excluded.created_at
	`
	_, err = s.db.ExecContext(ctx, query,
		key, string(table.Requested), string(table.Applied), string(raw),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: put rate table")
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"calculations", "reference_values", "rate_tables"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sqlite: reset %s", table)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
