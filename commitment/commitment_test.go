package commitment

import (
	"strings"
	"testing"
)

func TestHashCleartextDeterministic(t *testing.T) {
	a := HashCleartext("what is the airspeed velocity of an unladen swallow")
	b := HashCleartext("what is the airspeed velocity of an unladen swallow")
	if a != b {
		t.Fatalf("same input hashed to %s and %s", a, b)
	}
	if a.IsZero() {
		t.Fatal("digest is zero")
	}
}

func TestHashCleartextDistinct(t *testing.T) {
	if HashCleartext("alpha") == HashCleartext("beta") {
		t.Fatal("distinct inputs collided")
	}
	// One byte past the single-block boundary must still matter.
	long := strings.Repeat("x", 31)
	if HashCleartext(long) == HashCleartext(long+"y") {
		t.Fatal("multi-block input collided with its prefix")
	}
}

func TestHexRoundTrip(t *testing.T) {
	h := HashCleartext("round trip")
	parsed, err := ParseHex(h.Hex())
	if err != nil {
		t.Fatalf("ParseHex(%s): %v", h.Hex(), err)
	}
	if parsed != h {
		t.Fatalf("got %s, want %s", parsed, h)
	}
	if _, err := ParseHex("0xdeadbeef"); err == nil {
		t.Fatal("short input accepted")
	}
	if _, err := ParseHex(strings.Repeat("zz", 32)); err == nil {
		t.Fatal("non-hex input accepted")
	}
}
