package forwarder

import (
	"testing"

	"go.uber.org/goleak"
)

// Forwarder.Run spawns a goroutine per test; verify none outlive it.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
