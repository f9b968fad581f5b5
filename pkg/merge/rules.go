package merge

// Structural rules checked in the EXPANDED phase.
const (
	RuleProfileValid                 = "profile_valid"
	RuleHandlerIDsUnique             = "handler_ids_unique"
	RuleHandlerDependencyExists      = "handler_dependency_exists"
	RuleHandlerGraphAcyclic          = "handler_graph_acyclic"
	RuleHandlerCapabilityDeclared    = "handler_capability_declared"
	RuleCapabilityNamesUnique        = "capability_names_unique"
	RuleCapabilityDependencyResolves = "capability_dependency_resolves"
	RuleAppliesAfterResolves         = "applies_after_resolves"
	RuleGuardCompiles                = "guard_compiles"
	RuleComputeHasNoEffects          = "compute_has_no_effects"
)
