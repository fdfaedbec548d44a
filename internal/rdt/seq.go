package rdt

// incr advances a sequence-space index by one, wrapping modulo the
// sequence space size s (spec.md §4.3: incr(x) = (x+1) mod S).
func incr(x, s int) int {
	return (x + 1) % s
}

// diff returns the clockwise distance from y to x in a sequence space of
// size s (spec.md §4.3: diff(x, y) = (x >= y) ? x-y : x+S-y).
func diff(x, y, s int) int {
	if x >= y {
		return x - y
	}
	return x + s - y
}
