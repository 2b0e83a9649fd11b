package idgen

import "testing"

func TestWorkspaceShortIDRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 42, 123456, 999999999}
	for _, id := range cases {
		short := EncodeWorkspaceShortID(id)
		if len(short) != shortIDLength {
			t.Fatalf("EncodeWorkspaceShortID(%d) = %q, want length %d", id, short, shortIDLength)
		}
		got, err := DecodeWorkspaceShortID(short)
		if err != nil {
			t.Fatalf("DecodeWorkspaceShortID(%q) error: %v", short, err)
		}
		if got != id {
			t.Fatalf("round trip for %d: got %d", id, got)
		}
	}
}

func TestDecodeWorkspaceShortIDInvalid(t *testing.T) {
	if _, err := DecodeWorkspaceShortID("!!!not-base36"); err == nil {
		t.Fatal("expected error for invalid short-id")
	}
}

func TestEncodeBase36PadsAndTruncates(t *testing.T) {
	if got := EncodeBase36([]byte{0}, 4); got != "0000" {
		t.Fatalf("EncodeBase36 zero = %q, want 0000", got)
	}
	// 256 is "74" in base36; length 1 keeps the least-significant digit.
	if got := EncodeBase36([]byte{1, 0}, 1); got != "4" {
		t.Fatalf("EncodeBase36 truncate = %q, want 4", got)
	}
}
