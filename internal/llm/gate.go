package llm

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// AdmissionGate bounds the number of in-flight backend calls so provider
// overload degrades to queueing instead of a pile-up of network calls.
// Slots are handed out first come, first served with no priority scheme.
//
// Acquire blocks until a slot frees up or ctx is canceled; TryAcquire is
// the non-blocking variant used when the router runs in fail-fast mode.
// Every successful acquire must be paired with exactly one Release,
// success or failure of the guarded call notwithstanding.
type AdmissionGate struct {
	sem *semaphore.Weighted
	max int64
}

// NewAdmissionGate creates a gate with maxConcurrent slots.
func NewAdmissionGate(maxConcurrent int) *AdmissionGate {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &AdmissionGate{
		sem: semaphore.NewWeighted(int64(maxConcurrent)),
		max: int64(maxConcurrent),
	}
}

// Acquire reserves a slot, blocking until one is available. The only
// error is ctx's cancellation or deadline error.
func (g *AdmissionGate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// TryAcquire reserves a slot without blocking.
func (g *AdmissionGate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

// Release returns a slot.
func (g *AdmissionGate) Release() {
	g.sem.Release(1)
}

// Max returns the configured slot count.
func (g *AdmissionGate) Max() int64 { return g.max }
