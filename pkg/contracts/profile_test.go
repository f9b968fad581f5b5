package contracts

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func sampleProfile() ContractProfile {
	return ContractProfile{
		Name:    "ingest",
		Version: "1.2.0",
		Kind:    NodeEffect,
		Fields:  map[FieldPath]Value{"runtime.timeout_ms": Int(3000)},
		Capabilities: []CapabilityDeclaration{
			{Name: "storage.write", Version: ">=1.0.0", Effect: true},
		},
		Handlers: []HandlerDefinition{
			{ID: "validate", Phase: PhasePreflight},
			{ID: "write", Phase: PhaseExecute, DependsOn: []string{"validate"}, Requires: []string{"storage.write"}},
		},
		Extensions: map[string]Value{"owner": String("platform")},
	}
}

func TestProfileValidate(t *testing.T) {
	p := sampleProfile()
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid profile: %v", err)
	}

	cases := map[string]func(*ContractProfile){
		"name":      func(p *ContractProfile) { p.Name = "" },
		"version":   func(p *ContractProfile) { p.Version = "one" },
		"kind":      func(p *ContractProfile) { p.Kind = "LAMBDA" },
		"path":      func(p *ContractProfile) { p.Fields["bad..path"] = Int(1) },
		"extension": func(p *ContractProfile) { p.Extensions["nested"] = List(Int(1)) },
		"phase":     func(p *ContractProfile) { p.Handlers[0].Phase = "LATER" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := sampleProfile()
			mutate(&p)
			if err := p.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestProfileCloneIsDeep(t *testing.T) {
	p := sampleProfile()
	c := p.Clone()
	c.Fields["runtime.timeout_ms"] = Int(1)
	c.Handlers[1].DependsOn[0] = "other"
	if i, _ := p.Fields["runtime.timeout_ms"].AsInt(); i != 3000 {
		t.Fatal("clone shares fields map")
	}
	if p.Handlers[1].DependsOn[0] != "validate" {
		t.Fatal("clone shares handler dependencies")
	}
}

func TestFieldPathValidation(t *testing.T) {
	good := []string{"a", "runtime.timeout_ms", "x-1.y_2"}
	for _, g := range good {
		if _, err := ParseFieldPath(g); err != nil {
			t.Fatalf("%q: %v", g, err)
		}
	}
	bad := []string{"", ".a", "a.", "a..b", "a b", "a/b", strings.Repeat("a.", MaxFieldPathDepth) + "a"}
	for _, b := range bad {
		if _, err := ParseFieldPath(b); err == nil {
			t.Fatalf("%q: expected error", b)
		}
	}
	if MustFieldPath("a.b.c").Parent() != "a.b" {
		t.Fatal("unexpected parent")
	}
	if !MustFieldPath("a.b").HasPrefix("a") || MustFieldPath("ab").HasPrefix("a") {
		t.Fatal("unexpected prefix semantics")
	}
}

func TestPhaseOrdering(t *testing.T) {
	for i := 1; i < len(Phases); i++ {
		if Phases[i-1].Rank() >= Phases[i].Rank() {
			t.Fatalf("%s must precede %s", Phases[i-1], Phases[i])
		}
	}
	p, err := ParsePhase("execute")
	if err != nil || p != PhaseExecute {
		t.Fatalf("ParsePhase: %v %v", p, err)
	}
}

func TestHandlerTimeoutDecoding(t *testing.T) {
	var h HandlerDefinition
	if err := yaml.Unmarshal([]byte("id: a\nphase: EXECUTE\ntimeout: 250ms\n"), &h); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if h.Timeout.Std() != 250*time.Millisecond {
		t.Fatalf("unexpected timeout %s", h.Timeout)
	}
	if err := json.Unmarshal([]byte(`{"id":"a","phase":"EXECUTE","timeout":1500}`), &h); err != nil {
		t.Fatalf("json: %v", err)
	}
	if h.Timeout.Std() != 1500*time.Millisecond {
		t.Fatalf("unexpected timeout %s", h.Timeout)
	}
}

func TestPatchOpJSONOmitsDeleteValue(t *testing.T) {
	b, err := json.Marshal(PatchOp{Op: OpDelete, Path: "a.b"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"op":"delete","path":"a.b"}` {
		t.Fatalf("unexpected encoding %s", b)
	}
}

func TestAggregate(t *testing.T) {
	checks := []VerificationCheckResult{
		{CheckID: "a", Status: CheckPass},
		{CheckID: "b", Status: CheckSkip},
	}
	if Aggregate(checks) != OverallPass {
		t.Fatal("skips must not fail the report")
	}
	checks = append(checks, VerificationCheckResult{CheckID: "c", Status: CheckFail})
	if Aggregate(checks) != OverallFail {
		t.Fatal("expected FAIL")
	}
}
