package verifier

// Check identifiers, in report order.
const (
	CheckSchemaConformance = "schema_conformance"
	CheckCapabilityLint    = "capability_lint"
	CheckFixturePresence   = "fixture_presence"
	CheckOverlayMerge      = "overlay_merge"
	CheckDeterminism       = "determinism"
)

// CheckIDs is the fixed battery every report covers.
var CheckIDs = []string{
	CheckSchemaConformance,
	CheckCapabilityLint,
	CheckFixturePresence,
	CheckOverlayMerge,
	CheckDeterminism,
}

// Reason codes are stable identifiers. They must not change between
// releases.
const (
	// --- Schema ---
	ReasonSchemaViolation = "SCHEMA_VIOLATION"
	ReasonEncodeFailed    = "ENCODE_FAILED"

	// --- Capabilities ---
	ReasonCapabilityInvalid    = "CAPABILITY_INVALID"
	ReasonCapabilityUndeclared = "CAPABILITY_UNDECLARED"
	ReasonCapabilityCycle      = "CAPABILITY_CYCLE"
	ReasonEffectInCompute      = "EFFECT_IN_COMPUTE"

	// --- Fixtures ---
	ReasonNoFixtures          = "NO_FIXTURES"
	ReasonFixtureSourceAbsent = "FIXTURE_SOURCE_ABSENT"
	ReasonFixtureMissing      = "FIXTURE_MISSING"
	ReasonFixtureDigest       = "FIXTURE_DIGEST_MISMATCH"

	// --- Overlays ---
	ReasonNoOverlays        = "NO_OVERLAYS"
	ReasonRemergeFailed     = "REMERGE_FAILED"
	ReasonOrderMismatch     = "APPLIED_ORDER_MISMATCH"
	ReasonOrderAmbiguous    = "OVERLAY_ORDER_AMBIGUOUS"
	ReasonDigestMismatch    = "DIGEST_MISMATCH"
	ReasonContractDivergent = "CONTRACT_DIVERGENT"

	// --- Determinism ---
	ReasonEffectNode       = "EFFECT_NODE"
	ReasonNondeterministic = "NONDETERMINISTIC"
	ReasonGuardUnparseable = "GUARD_UNPARSEABLE"

	// --- Harness ---
	ReasonCheckTimeout   = "CHECK_TIMEOUT"
	ReasonCheckPanic     = "CHECK_PANIC"
	ReasonHarnessAborted = "HARNESS_ABORTED"
)
