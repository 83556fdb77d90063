// Package dblock serialises integration tests that share one Postgres database
// across packages. go test runs packages in parallel processes, so the lock is a
// loopback listener rather than a mutex.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultLockAddr = "127.0.0.1:45432"

// Acquire blocks until this process owns the lock and returns its release func.
// SETTLEMENT_TEST_DBLOCK_ADDR overrides the listener address.
func Acquire() func() {
	addr := os.Getenv("SETTLEMENT_TEST_DBLOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
