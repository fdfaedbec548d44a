package rdt

import "testing"

func TestIncrWraps(t *testing.T) {
	if got := incr(7, 8); got != 0 {
		t.Fatalf("incr(7,8) = %d, want 0", got)
	}
	if got := incr(3, 8); got != 4 {
		t.Fatalf("incr(3,8) = %d, want 4", got)
	}
}

func TestDiffClockwiseDistance(t *testing.T) {
	cases := []struct{ x, y, s, want int }{
		{5, 2, 8, 3},
		{2, 5, 8, 5}, // wraps: 2+8-5
		{0, 0, 8, 0},
	}
	for _, c := range cases {
		if got := diff(c.x, c.y, c.s); got != c.want {
			t.Fatalf("diff(%d,%d,%d) = %d, want %d", c.x, c.y, c.s, got, c.want)
		}
	}
}
