package dht

// topMask is 0xffff0000 reinterpreted as a signed 32-bit value.
const topMask int32 = -65536

// hashIt maps a key string to a value in [0, 2^31), using the same
// halfword-mixing fold spec.md §4.4 requires for wire interoperability
// with other reimplementations. The arithmetic must match Go's int32
// two's-complement wraparound bit for bit, so every intermediate stays
// typed as int32 rather than the platform int.
func hashIt(s string) uint32 {
	for len(s) < 16 {
		s += s
	}
	b := []byte(s)

	h := int32(0x37ace45d)
	for i := 0; i+1 < len(b); i += 2 {
		x := int32(int8(b[i]))<<8 | int32(int8(b[i+1]))
		h *= x
		top := h & topMask
		bot := h & 0xffff
		h = top | (bot ^ ((top >> 16) & 0xffff))
	}
	if h < 0 {
		h = -(h + 1)
	}
	return uint32(h)
}
