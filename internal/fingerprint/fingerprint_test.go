package fingerprint

import (
	"strings"
	"testing"
)

func TestCompute_KeyOrderIndependence(t *testing.T) {
	t.Parallel()

	a, err := Compute(map[string]any{"a": 1, "b": 2, "c": 3})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(map[string]any{"c": 3, "b": 2, "a": 1})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	c, err := Compute(map[string]any{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a != b || b != c {
		t.Fatalf("digests differ across key orders: %s %s %s", a, b, c)
	}
}

func TestCompute_NestedKeyOrderIndependence(t *testing.T) {
	t.Parallel()

	a, err := Compute(map[string]any{
		"outer": map[string]any{"x": 1, "y": map[string]any{"p": true, "q": nil}},
		"list":  []any{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(map[string]any{
		"list":  []any{1, 2, 3},
		"outer": map[string]any{"y": map[string]any{"q": nil, "p": true}, "x": 1},
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a != b {
		t.Fatalf("nested reorder changed digest: %s vs %s", a, b)
	}
}

func TestCompute_ArrayOrderSignificant(t *testing.T) {
	t.Parallel()

	a, err := Compute(map[string]any{"x": []any{1, 2, 3}})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(map[string]any{"x": []any{3, 2, 1}})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a == b {
		t.Fatalf("array reorder did not change digest: %s", a)
	}
}

func TestCompute_StructAndMapAgree(t *testing.T) {
	t.Parallel()

	type payment struct {
		Amount   int    `json:"amount"`
		Currency string `json:"currency"`
	}
	a, err := Compute(payment{Amount: 100, Currency: "USD"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(map[string]any{"currency": "USD", "amount": 100})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a != b {
		t.Fatalf("struct and equivalent map disagree: %s vs %s", a, b)
	}
}

func TestCompute_HexLowercase(t *testing.T) {
	t.Parallel()

	d, err := Compute(map[string]any{"amount": 100})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(d) != 64 {
		t.Fatalf("sha256 digest length = %d, want 64", len(d))
	}
	if d != strings.ToLower(d) {
		t.Fatalf("digest not lowercase: %s", d)
	}
}

func TestComputeWith_Algorithms(t *testing.T) {
	t.Parallel()

	payload := map[string]any{"amount": 100}
	for alg, hexLen := range map[string]int{
		"sha256": 64,
		"sha224": 56,
		"sha384": 96,
		"sha512": 128,
		"sha1":   40,
		"md5":    32,
	} {
		d, err := ComputeWith(alg, payload)
		if err != nil {
			t.Fatalf("ComputeWith(%s): %v", alg, err)
		}
		if len(d) != hexLen {
			t.Fatalf("ComputeWith(%s) length = %d, want %d", alg, len(d), hexLen)
		}
	}
}

func TestComputeWith_UnsupportedAlgorithm(t *testing.T) {
	t.Parallel()

	if _, err := ComputeWith("crc32", map[string]any{"a": 1}); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
	if Supported("crc32") {
		t.Fatalf("Supported(crc32) = true")
	}
	if !Supported("sha256") {
		t.Fatalf("Supported(sha256) = false")
	}
}

func TestCompute_UnserializablePayload(t *testing.T) {
	t.Parallel()

	if _, err := Compute(map[string]any{"f": func() {}}); err == nil {
		t.Fatalf("expected error for unserializable payload")
	}
}

func TestCanonicalize_Compact(t *testing.T) {
	t.Parallel()

	got, err := Canonicalize(map[string]any{"b": []any{1, "two"}, "a": nil})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	want := `{"a":null,"b":[1,"two"]}`
	if string(got) != want {
		t.Fatalf("canonical form = %s, want %s", got, want)
	}
}
