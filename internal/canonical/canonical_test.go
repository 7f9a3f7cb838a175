package canonical

import (
	"strings"
	"testing"
)

func TestMarshalSortsMapKeys(t *testing.T) {
	first, err := Marshal(map[string]int{"b": 1, "a": 2})
	if err != nil {
		t.Fatalf("marshal first: %v", err)
	}
	second, err := Marshal(map[string]int{"a": 2, "b": 1})
	if err != nil {
		t.Fatalf("marshal second: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("construction order leaked into output: %s vs %s", first, second)
	}
	if string(first) != `{"a":2,"b":1}` {
		t.Fatalf("unexpected canonical form: %s", first)
	}
}

func TestHashStableAcrossEquivalentInputs(t *testing.T) {
	h1, err := Hash(map[string]any{"b": 1, "a": 2})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := Hash(map[string]any{"a": 2, "b": 1})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}
	if len(h1) != 64 || strings.ToLower(h1) != h1 {
		t.Fatalf("hash must be 64 lowercase hex chars, got %q", h1)
	}
}

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	out, err := Marshal("a<b>&c")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"a<b>&c"` {
		t.Fatalf("unexpected escaping: %s", out)
	}
}

func TestMarshalRejectsUnsupportedTypes(t *testing.T) {
	if _, err := Marshal(make(chan int)); err == nil {
		t.Fatal("expected error for chan input")
	}
	if _, err := Marshal(func() {}); err == nil {
		t.Fatal("expected error for func input")
	}
	if _, err := Hash(map[string]any{"f": func() {}}); err == nil {
		t.Fatal("expected error for nested func input")
	}
}

func TestNestedStructuresAreDeterministic(t *testing.T) {
	build := func() any {
		inner := map[string]any{"z": []int{3, 2, 1}, "y": "v"}
		return map[string]any{"outer": inner, "id": 7}
	}
	h1, err := Hash(build())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := Hash(build())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("nested hash unstable: %s vs %s", h1, h2)
	}
}
