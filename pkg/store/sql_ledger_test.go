package store

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

var columns = []string{"id", "contract", "version", "contract_digest", "plan_digest", "report_digest", "overall", "applied_patches", "created_at"}

func sampleRecord(id string, at time.Time) Record {
	return Record{
		ID:             id,
		Contract:       "pricing",
		Version:        "2.1.0",
		ContractDigest: "sha256:" + id,
		PlanDigest:     "sha256:plan",
		Overall:        contracts.OverallPass,
		AppliedPatches: []string{"defaults", "tighten"},
		CreatedAt:      at,
	}
}

func TestSQLLedger_PostgresAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ledger, err := NewSQLLedger(db, DriverPostgres)
	require.NoError(t, err)
	rec := sampleRecord("r-1", time.Unix(1700000000, 0))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO resolutions") + `.*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9\)`).
		WithArgs(rec.ID, rec.Contract, rec.Version, rec.ContractDigest, rec.PlanDigest, "", "PASS", `["defaults","tighten"]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ledger.Append(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedger_PostgresGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ledger, err := NewSQLLedger(db, DriverPostgres)
	require.NoError(t, err)
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery(`SELECT .* FROM resolutions WHERE id = \$1`).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("r-1", "pricing", "2.1.0", "sha256:r-1", "sha256:plan", "", "PASS", `["defaults","tighten"]`, at))
	mock.ExpectQuery(`SELECT .* FROM resolutions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	got, err := ledger.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, sampleRecord("r-1", at), got)

	_, err = ledger.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedger_RejectsIncompleteRecord(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ledger, err := NewSQLLedger(db, DriverSQLite)
	require.NoError(t, err)
	assert.Error(t, ledger.Append(context.Background(), Record{ID: "x"}))
}

func TestNewSQLLedger_UnknownDriver(t *testing.T) {
	_, err := NewSQLLedger(nil, "mysql")
	assert.Error(t, err)
}

func TestSQLLedger_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer func() { _ = ledger.Close() }()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := sampleRecord("a", base)
	second := sampleRecord("b", base.Add(time.Minute))
	second.AppliedPatches = []string{}
	require.NoError(t, ledger.Append(ctx, first))
	require.NoError(t, ledger.Append(ctx, second))
	assert.Error(t, ledger.Append(ctx, first), "ids are unique")

	got, err := ledger.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, first.ContractDigest, got.ContractDigest)
	assert.Equal(t, first.AppliedPatches, got.AppliedPatches)
	assert.WithinDuration(t, first.CreatedAt, got.CreatedAt, time.Second)

	latest, err := ledger.Latest(ctx, "pricing")
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	history, err := ledger.History(ctx, "pricing")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "a", history[0].ID)
	assert.Equal(t, "b", history[1].ID)

	_, err = ledger.Latest(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
	history, err = ledger.History(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestNewRecord(t *testing.T) {
	m := &contracts.MergedContract{
		Contract:     contracts.ContractProfile{Name: "pricing", Version: "2.1.0"},
		AppliedOrder: []string{"tighten"},
		Digest:       "sha256:abc",
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	r := NewRecord(m, &contracts.ExecutionPlan{Digest: "sha256:plan"}, &contracts.VerificationReport{Overall: contracts.OverallFail, Digest: "sha256:rep"}, now)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "sha256:abc", r.ContractDigest)
	assert.Equal(t, "sha256:plan", r.PlanDigest)
	assert.Equal(t, contracts.OverallFail, r.Overall)
	assert.Equal(t, time.UTC, r.CreatedAt.Location())

	bare := NewRecord(m, nil, nil, now)
	assert.Empty(t, bare.PlanDigest)
	assert.Empty(t, bare.Overall)
}
