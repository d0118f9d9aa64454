package mint

import (
	"errors"
	"testing"
)

func TestGenerateShapes(t *testing.T) {
	c, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if len(c.PairID) != 6 {
		t.Fatalf("pair id length = %d, want 6", len(c.PairID))
	}
	if len(c.Token) != 32 {
		t.Fatalf("token length = %d, want 32", len(c.Token))
	}
	if !ValidPairID(c.PairID) {
		t.Fatalf("generated pair id %q fails validation", c.PairID)
	}
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	calls := 0
	c, err := Generate(func(string) bool {
		calls++
		return calls <= 3
	})
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 3 collisions before success, saw %d probes", calls)
	}
	if c.PairID == "" || c.Token == "" {
		t.Fatalf("empty credentials after retry: %+v", c)
	}
}

func TestGenerateGivesUpWhenSpaceExhausted(t *testing.T) {
	_, err := Generate(func(string) bool { return true })
	if !errors.Is(err, ErrPairIDSpaceExhausted) {
		t.Fatalf("expected ErrPairIDSpaceExhausted, got %v", err)
	}
}

func TestValidPairID(t *testing.T) {
	cases := map[string]bool{
		"a1b2c3":  true,
		"000000":  true,
		"A1B2C3":  false,
		"a1b2c":   false,
		"a1b2c3d": false,
		"a1b2cg":  false,
		"":        false,
	}
	for in, want := range cases {
		if got := ValidPairID(in); got != want {
			t.Fatalf("ValidPairID(%q) = %v, want %v", in, got, want)
		}
	}
}
