// Package store persists resolution records: a lockfile-style history of
// which merged contract, plan and verification report a run produced.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

var ErrNotFound = errors.New("resolution record not found")

// Record pins one resolution run.
type Record struct {
	ID             string                  `json:"id"`
	Contract       string                  `json:"contract"`
	Version        string                  `json:"version"`
	ContractDigest string                  `json:"contract_digest"`
	PlanDigest     string                  `json:"plan_digest,omitempty"`
	ReportDigest   string                  `json:"report_digest,omitempty"`
	Overall        contracts.OverallStatus `json:"overall,omitempty"`
	AppliedPatches []string                `json:"applied_patches"`
	CreatedAt      time.Time               `json:"created_at"`
}

// Ledger stores resolution records. Records are append-only.
type Ledger interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, r Record) error
	Get(ctx context.Context, id string) (Record, error)
	// Latest returns the newest record for a contract.
	Latest(ctx context.Context, contract string) (Record, error)
	// History lists a contract's records, oldest first.
	History(ctx context.Context, contract string) ([]Record, error)
}

// NewRecord builds a record from pipeline outputs. plan and report may be
// nil when those stages did not run.
func NewRecord(m *contracts.MergedContract, plan *contracts.ExecutionPlan, report *contracts.VerificationReport, now time.Time) Record {
	r := Record{
		ID:             uuid.NewString(),
		Contract:       m.Contract.Name,
		Version:        m.Contract.Version,
		ContractDigest: m.Digest,
		AppliedPatches: append([]string{}, m.AppliedOrder...),
		CreatedAt:      now.UTC(),
	}
	if plan != nil {
		r.PlanDigest = plan.Digest
	}
	if report != nil {
		r.ReportDigest = report.Digest
		r.Overall = report.Overall
	}
	return r
}
