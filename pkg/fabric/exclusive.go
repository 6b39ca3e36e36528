// exclusive.go implements the exclusivity contract a coordinated step
// needs: the coordinator holds exclusive access to all involved Valves for
// the duration of the call. A single process satisfies that with a mutex;
// a deployment running more than one controller process sharing a
// stack needs the cross-process fencing token pkg/fabric/lock.go provides.
// ExclusivityBackend lets WithExclusive use either, with the mutex as the
// always-on default and Lock as a pluggable upgrade.
package fabric

import (
	"sync"
	"time"
)

// ExclusivityBackend guards one coordinated step by name. Lock satisfies
// this with Redis-backed fencing; inProcessBackend is the zero-config
// default.
type ExclusivityBackend interface {
	Acquire(name, holder string, ttl time.Duration) error
	Release(name, holder string) error
}

type inProcessBackend struct {
	mu sync.Mutex
}

func (b *inProcessBackend) Acquire(string, string, time.Duration) error {
	b.mu.Lock()
	return nil
}

func (b *inProcessBackend) Release(string, string) error {
	b.mu.Unlock()
	return nil
}

// SetExclusivityBackend swaps in a cross-process backend (typically a
// *Lock) in place of the in-process mutex default — used when more than one
// controller process coordinates the same stack.
func (a *Arena) SetExclusivityBackend(b ExclusivityBackend) {
	a.exclusivity = b
}

// WithExclusive runs fn while holding exclusive access to every Valve this
// arena owns. holder identifies the calling process when the
// backend is cross-process (e.g. a *Lock); it is ignored by the in-process
// default.
func (a *Arena) WithExclusive(holder string, ttl time.Duration, fn func() error) error {
	if err := a.exclusivity.Acquire(a.topology.RootName(), holder, ttl); err != nil {
		return err
	}
	defer a.exclusivity.Release(a.topology.RootName(), holder)
	return fn()
}
