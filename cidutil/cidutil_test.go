package cidutil

import "testing"

func TestFingerprint_StableAndParseable(t *testing.T) {
	a, err := Fingerprint([]byte("snapshot"))
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, err := Fingerprint([]byte("snapshot"))
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if !a.Equals(b) {
		t.Fatalf("fingerprint not stable: %s vs %s", a, b)
	}
	if FingerprintString([]byte("snapshot")) != a.String() {
		t.Fatalf("string form mismatch")
	}

	parsed, err := Parse(a.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !parsed.Equals(a) {
		t.Fatalf("parse round trip mismatch")
	}
	if !Matches(a, []byte("snapshot")) {
		t.Fatalf("Matches: expected true")
	}
	if Matches(a, []byte("snapshot2")) {
		t.Fatalf("Matches: expected false for different bytes")
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-cid"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Parse(""); err == nil {
		t.Fatalf("expected error for empty string")
	}
}
