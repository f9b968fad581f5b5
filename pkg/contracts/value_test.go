package contracts

import (
	"encoding/json"
	"math"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestValueJSONKeepsIntegers(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"timeout_ms": 3000, "ratio": 0.5, "tags": ["a", true, null]}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := v.AsMap()
	if !ok {
		t.Fatalf("expected map, got %s", v.Kind())
	}
	if i, ok := m["timeout_ms"].AsInt(); !ok || i != 3000 {
		t.Fatalf("expected int 3000, got %v", m["timeout_ms"])
	}
	if f, ok := m["ratio"].AsFloat(); !ok || f != 0.5 || m["ratio"].Kind() != KindFloat {
		t.Fatalf("expected float 0.5, got %v", m["ratio"])
	}
	tags, _ := m["tags"].AsList()
	if len(tags) != 3 || !tags[2].IsNull() {
		t.Fatalf("unexpected tags %v", m["tags"])
	}
}

func TestValueMarshalSortsKeys(t *testing.T) {
	v := Map(map[string]Value{"b": Int(2), "a": String("x"), "c": List(Bool(true))})
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"a":"x","b":2,"c":[true]}` {
		t.Fatalf("unexpected encoding %s", b)
	}
}

func TestValueRejectsNonFiniteFloat(t *testing.T) {
	if _, err := Float(math.Inf(1)).MarshalJSON(); err == nil {
		t.Fatal("expected error for +Inf")
	}
}

func TestValueEqual(t *testing.T) {
	a := Map(map[string]Value{"x": List(Int(1), Null())})
	b := Map(map[string]Value{"x": List(Int(1), Null())})
	if !a.Equal(b) {
		t.Fatal("expected equal")
	}
	if Int(1).Equal(Float(1)) {
		t.Fatal("int and float must not compare equal")
	}
	if a.Equal(Map(map[string]Value{"x": List(Int(2), Null())})) {
		t.Fatal("expected different")
	}
}

func TestValueConstructorsCopy(t *testing.T) {
	src := map[string]Value{"k": Int(1)}
	v := Map(src)
	src["k"] = Int(2)
	m, _ := v.AsMap()
	if i, _ := m["k"].AsInt(); i != 1 {
		t.Fatal("map value aliased its input")
	}
	m["k"] = Int(3)
	again, _ := v.AsMap()
	if i, _ := again["k"].AsInt(); i != 1 {
		t.Fatal("AsMap returned internal storage")
	}
}

func TestValueYAML(t *testing.T) {
	var doc struct {
		V Value `yaml:"v"`
	}
	if err := yaml.Unmarshal([]byte("v:\n  retries: 3\n  name: svc\n"), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	want := Map(map[string]Value{"retries": Int(3), "name": String("svc")})
	if !doc.V.Equal(want) {
		t.Fatalf("got %s want %s", doc.V, want)
	}
}

func TestFromAnyRejectsUnsupported(t *testing.T) {
	if _, err := FromAny(struct{}{}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := FromAny(map[any]any{1: "x"}); err == nil {
		t.Fatal("expected error for non-string key")
	}
}
