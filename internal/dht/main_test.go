package dht

import (
	"testing"

	"go.uber.org/goleak"
)

// Server.Run spawns the node's receive-loop goroutine in tests that
// exercise ring membership; verify it exits with its context.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
