package rdt

import (
	"testing"

	"go.uber.org/goleak"
)

// Conn.Run and the substrate read loops spawn goroutines that must
// exit once Quit/Close is called; catch any that don't.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
