package ctxstore

import (
	"reflect"
	"testing"
)

func TestDeepMergeRecursesOnSharedMapKeys(t *testing.T) {
	dst := map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": "keep"}
	src := map[string]any{"a": map[string]any{"y": 99, "z": 3}}
	got := deepMerge(dst, src)
	want := map[string]any{"a": map[string]any{"x": 1, "y": 99, "z": 3}, "b": "keep"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestDeepMergeReplacesListsAndScalars(t *testing.T) {
	dst := map[string]any{"a": []any{1, 2, 3}, "b": 1}
	src := map[string]any{"a": []any{9}, "b": 2}
	got := deepMerge(dst, src)
	if !reflect.DeepEqual(got["a"], []any{9}) {
		t.Fatalf("expected list replaced, got %#v", got["a"])
	}
	if got["b"] != 2 {
		t.Fatalf("expected scalar replaced, got %#v", got["b"])
	}
}

func TestDeepMergeIdempotentOnRightIdentity(t *testing.T) {
	a := map[string]any{"common": map[string]any{"k": 1}}
	b := map[string]any{"common": map[string]any{"k": 2}}
	once := deepMerge(a, b)
	twice := deepMerge(a, once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("deep_merge(a, deep_merge(a,b)) != deep_merge(a,b): %#v vs %#v", twice, once)
	}
}

func TestSetAndGetDotted(t *testing.T) {
	m := map[string]any{}
	setDotted(m, []string{"x", "y", "z"}, "value")
	v, ok := getDotted(m, []string{"x", "y", "z"})
	if !ok || v != "value" {
		t.Fatalf("expected round-trip value, got %v ok=%v", v, ok)
	}
	if _, ok := getDotted(m, []string{"x", "missing"}); ok {
		t.Fatal("expected missing path to resolve false")
	}
}
