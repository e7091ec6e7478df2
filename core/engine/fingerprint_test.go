package engine

import (
	"encoding/json"
	"testing"
)

func TestFingerprintEqualNormalizesNumbers(t *testing.T) {
	a := NewFingerprint().With("n", 5).With("s", "x")
	b := NewFingerprint().With("n", float64(5)).With("s", "x")
	if !a.Equal(b) {
		t.Fatalf("expected %s == %s", a, b)
	}
	c := b.With("n", 5.5)
	if a.Equal(c) {
		t.Fatalf("expected %s != %s", a, c)
	}
}

func TestFingerprintContainsAll(t *testing.T) {
	input := NewFingerprint().With("section", "EVENTS").With("cmd", 3)
	required := NewFingerprint().With("section", "EVENTS")
	if !input.ContainsAll(required) {
		t.Fatal("subset requirement should be contained")
	}
	if input.ContainsAll(required.With("missing", 1)) {
		t.Fatal("missing key should not be contained")
	}
	if input.ContainsAll(NewFingerprint().With("section", "OTHER")) {
		t.Fatal("mismatched value should not be contained")
	}
}

func TestMergeAndSplitRoundTrip(t *testing.T) {
	state := NewFingerprint().With("#", "B").With("section", "EVENTS")
	context := NewFingerprint().With(">", "f1").With("y", 1)

	payload, err := state.Merge(context)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	gotState, gotContext := SplitContext(raw)
	if !gotState.Equal(state) {
		t.Fatalf("state round trip: got %s, want %s", gotState, state)
	}
	if !gotContext.Equal(context) {
		t.Fatalf("context round trip: got %s, want %s", gotContext, context)
	}
}

func TestMergeOmitsEmptyContext(t *testing.T) {
	state := NewFingerprint().With("#", "B")
	payload, err := state.Merge(NewFingerprint())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw[KeyContext]; ok {
		t.Fatalf("empty context should be omitted, got %s", payload)
	}
}

func TestParseFingerprintRejectsMalformed(t *testing.T) {
	if _, err := ParseFingerprint([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := ParseFingerprint([]byte(`[1,2]`)); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}

func TestGetStringRendersScalars(t *testing.T) {
	fp := NewFingerprint().With("s", "text").With("n", 7)
	if got := fp.GetString("s"); got != "text" {
		t.Fatalf("GetString(s) = %q", got)
	}
	if got := fp.GetString("n"); got != "7" {
		t.Fatalf("GetString(n) = %q", got)
	}
	if got := fp.GetString("absent"); got != "" {
		t.Fatalf("GetString(absent) = %q", got)
	}
}
