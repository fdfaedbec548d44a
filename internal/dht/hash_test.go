package dht

import "testing"

func TestHashItNonNegativeAndDeterministic(t *testing.T) {
	// Empty string keys are excluded: like the wire format's reference
	// implementation, hashIt's length-doubling loop never terminates
	// for "" since doubling an empty string leaves it empty.
	for _, key := range []string{"dungeons", "dragons", "a", "x"} {
		h1 := hashIt(key)
		h2 := hashIt(key)
		if h1 != h2 {
			t.Fatalf("hashIt(%q) not deterministic: %d != %d", key, h1, h2)
		}
		if h1 >= 1<<31 {
			t.Fatalf("hashIt(%q) = %d, want < 2^31", key, h1)
		}
	}
}

func TestHashItDiffersAcrossKeys(t *testing.T) {
	if hashIt("dungeons") == hashIt("dragons") {
		t.Fatalf("expected distinct hashes for distinct keys (collision is allowed generally, but not for this pair in practice)")
	}
}
