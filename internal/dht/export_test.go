package dht

// HashItForTest exposes hashIt to external test packages.
func HashItForTest(s string) uint32 {
	return hashIt(s)
}
