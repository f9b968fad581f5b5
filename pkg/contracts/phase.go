package contracts

import (
	"fmt"
	"strings"
)

// Phase is a named execution stage. Phases are totally ordered.
type Phase string

const (
	PhasePreflight Phase = "PREFLIGHT"
	PhaseBefore    Phase = "BEFORE"
	PhaseExecute   Phase = "EXECUTE"
	PhaseAfter     Phase = "AFTER"
	PhaseEmit      Phase = "EMIT"
	PhaseFinalize  Phase = "FINALIZE"
)

// Phases lists every phase in execution order.
var Phases = []Phase{PhasePreflight, PhaseBefore, PhaseExecute, PhaseAfter, PhaseEmit, PhaseFinalize}

// Rank returns the position of p in execution order, or -1 if unknown.
func (p Phase) Rank() int {
	for i, q := range Phases {
		if p == q {
			return i
		}
	}
	return -1
}

func (p Phase) Valid() bool { return p.Rank() >= 0 }

// ParsePhase accepts a phase name in any case.
func ParsePhase(s string) (Phase, error) {
	for _, q := range Phases {
		if strings.EqualFold(string(q), s) {
			return q, nil
		}
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// NodeKind classifies the workload a contract describes.
type NodeKind string

const (
	NodeCompute      NodeKind = "COMPUTE"
	NodeEffect       NodeKind = "EFFECT"
	NodeReducer      NodeKind = "REDUCER"
	NodeOrchestrator NodeKind = "ORCHESTRATOR"
)

func (k NodeKind) Valid() bool {
	switch k {
	case NodeCompute, NodeEffect, NodeReducer, NodeOrchestrator:
		return true
	}
	return false
}
