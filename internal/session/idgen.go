package session

import (
	"crypto/rand"
	"math/big"
	"sync/atomic"
)

// maxSessionID matches the source's signed-31-bit session id space
// (QRandomGenerator64::bounded(1, INT32_MAX)).
const maxSessionID = int64(1<<31 - 1)

var debugCounter atomic.Int64

// newSessionID returns a random id in [1, maxSessionID). Collisions against
// currently-online sessions are the registry's responsibility to retry;
// Registry.Login draws again until the id is free.
func newSessionID() (int32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxSessionID-1))
	if err != nil {
		return 0, err
	}
	return int32(n.Int64() + 1), nil
}

// newDeterministicSessionID is a monotonic-counter alternative to
// newSessionID for reproducible ids. Registry.Login does not call it; it
// always draws ids from newSessionID.
func newDeterministicSessionID() int32 {
	return int32(debugCounter.Add(1))
}
