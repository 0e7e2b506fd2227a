package device

import (
	"context"
	"sync"

	"backend-triplog/internal/recorder"
)

// LeaseWakeLock hands out leases that can be revoked from outside with
// ReleaseAll, the way a platform drops a screen lock when the app is hidden.
type LeaseWakeLock struct {
	mu     sync.Mutex
	leases map[*Lease]struct{}
}

func NewLeaseWakeLock() *LeaseWakeLock {
	return &LeaseWakeLock{leases: map[*Lease]struct{}{}}
}

func (w *LeaseWakeLock) Request(_ context.Context, kind string) (recorder.Sentinel, error) {
	l := &Lease{Kind: kind, owner: w}
	w.mu.Lock()
	w.leases[l] = struct{}{}
	w.mu.Unlock()
	return l, nil
}

func (w *LeaseWakeLock) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.leases)
}

func (w *LeaseWakeLock) ReleaseAll() {
	w.mu.Lock()
	leases := make([]*Lease, 0, len(w.leases))
	for l := range w.leases {
		leases = append(leases, l)
	}
	w.mu.Unlock()

	for _, l := range leases {
		_ = l.Release()
	}
}

func (w *LeaseWakeLock) drop(l *Lease) {
	w.mu.Lock()
	delete(w.leases, l)
	w.mu.Unlock()
}

type Lease struct {
	Kind  string
	owner *LeaseWakeLock

	mu        sync.Mutex
	released  bool
	callbacks []func()
}

// Release is idempotent; callbacks run once, on the first call.
func (l *Lease) Release() error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	callbacks := l.callbacks
	l.callbacks = nil
	l.mu.Unlock()

	l.owner.drop(l)
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// OnRelease runs fn immediately if the lease is already gone.
func (l *Lease) OnRelease(fn func()) {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		fn()
		return
	}
	l.callbacks = append(l.callbacks, fn)
	l.mu.Unlock()
}

func (l *Lease) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}
