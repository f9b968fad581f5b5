package contracts

// CheckStatus is the outcome of one verification check.
type CheckStatus string

const (
	CheckPass CheckStatus = "PASS"
	CheckFail CheckStatus = "FAIL"
	CheckSkip CheckStatus = "SKIP"
)

// Tier identifies the verification tier that produced a report.
type Tier string

const (
	TierStatic    Tier = "STATIC"
	TierSimulated Tier = "SIMULATED"
)

// OverallStatus aggregates a report.
type OverallStatus string

const (
	OverallPass  OverallStatus = "PASS"
	OverallFail  OverallStatus = "FAIL"
	OverallError OverallStatus = "ERROR"
)

// VerificationCheckResult is produced once per check.
type VerificationCheckResult struct {
	CheckID string      `json:"check_id"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	// Reason is a stable machine-readable code for FAIL and SKIP results.
	Reason string `json:"reason,omitempty"`
}

// VerificationReport aggregates check results.
type VerificationReport struct {
	Tier    Tier                      `json:"tier"`
	Overall OverallStatus             `json:"overall"`
	Checks  []VerificationCheckResult `json:"checks"`
	// Error is set only when Overall is ERROR.
	Error  string `json:"error,omitempty"`
	Digest string `json:"digest,omitempty"`
}

// Aggregate computes the overall status of completed checks: FAIL if any
// check failed, PASS otherwise.
func Aggregate(checks []VerificationCheckResult) OverallStatus {
	for _, c := range checks {
		if c.Status == CheckFail {
			return OverallFail
		}
	}
	return OverallPass
}

// Check returns the result for checkID.
func (r *VerificationReport) Check(checkID string) (VerificationCheckResult, bool) {
	for _, c := range r.Checks {
		if c.CheckID == checkID {
			return c, true
		}
	}
	return VerificationCheckResult{}, false
}
