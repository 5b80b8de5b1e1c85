package shared

import "context"

// CorrelationLocker serializes operations that share a correlation key.
// The reconciliation engine performs read-then-write idempotency checks;
// without per-key serialization two near-simultaneous confirmations for
// the same order can both observe "no existing transaction" and each
// create one.
type CorrelationLocker interface {
	// Lock acquires the lock for the given key, blocking until it is
	// available or the context is cancelled. It returns a release
	// function that must be called exactly once.
	Lock(ctx context.Context, key string) (func(), error)
}
