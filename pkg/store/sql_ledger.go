package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

// Driver names a supported SQL dialect.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// SQLLedger implements Ledger on database/sql for SQLite and Postgres.
type SQLLedger struct {
	db     *sql.DB
	driver Driver
}

func NewSQLLedger(db *sql.DB, driver Driver) (*SQLLedger, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported ledger driver: %s", driver)
	}
	return &SQLLedger{db: db, driver: driver}, nil
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*SQLLedger, error) {
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases coherent.
		db.SetMaxOpenConns(1)
	}
	l, err := NewSQLLedger(db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := l.Init(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	return l, nil
}

func (s *SQLLedger) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS resolutions (
	id TEXT PRIMARY KEY,
	contract TEXT NOT NULL,
	version TEXT NOT NULL,
	contract_digest TEXT NOT NULL,
	plan_digest TEXT NOT NULL DEFAULT '',
	report_digest TEXT NOT NULL DEFAULT '',
	overall TEXT NOT NULL DEFAULT '',
	applied_patches TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS resolutions_contract_idx ON resolutions (contract, created_at);
`

const selectColumns = `SELECT id, contract, version, contract_digest, plan_digest, report_digest, overall, applied_patches, created_at FROM resolutions`

// bind rewrites ? placeholders into $n for postgres.
func (s *SQLLedger) bind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLLedger) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLLedger) Append(ctx context.Context, r Record) error {
	if r.ID == "" || r.Contract == "" || r.ContractDigest == "" {
		return fmt.Errorf("record requires id, contract and contract digest")
	}
	patches, err := json.Marshal(r.AppliedPatches)
	if err != nil {
		return fmt.Errorf("encode applied patches: %w", err)
	}
	query := s.bind(`INSERT INTO resolutions (id, contract, version, contract_digest, plan_digest, report_digest, overall, applied_patches, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.Contract, r.Version, r.ContractDigest, r.PlanDigest, r.ReportDigest, string(r.Overall), string(patches), r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append resolution %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLLedger) Get(ctx context.Context, id string) (Record, error) {
	return s.queryOne(ctx, s.bind(selectColumns+` WHERE id = ?`), id)
}

func (s *SQLLedger) Latest(ctx context.Context, contract string) (Record, error) {
	return s.queryOne(ctx, s.bind(selectColumns+` WHERE contract = ? ORDER BY created_at DESC, id DESC LIMIT 1`), contract)
}

func (s *SQLLedger) History(ctx context.Context, contract string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(selectColumns+` WHERE contract = ? ORDER BY created_at ASC, id ASC`), contract)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLLedger) queryOne(ctx context.Context, query string, arg any) (Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r       Record
		overall string
		patches string
	)
	if err := row.Scan(&r.ID, &r.Contract, &r.Version, &r.ContractDigest, &r.PlanDigest, &r.ReportDigest, &overall, &patches, &r.CreatedAt); err != nil {
		return Record{}, err
	}
	r.Overall = contracts.OverallStatus(overall)
	if err := json.Unmarshal([]byte(patches), &r.AppliedPatches); err != nil {
		return Record{}, fmt.Errorf("decode applied patches for %s: %w", r.ID, err)
	}
	return r, nil
}
