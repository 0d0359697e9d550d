package llm_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/internal/llm"
)

func TestAdmissionGateBoundsConcurrency(t *testing.T) {
	const slots = 4
	g := llm.NewAdmissionGate(slots)

	var inFlight, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			g.Release()
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > slots {
		t.Errorf("peak concurrency %d exceeded %d slots", got, slots)
	}
}

func TestAdmissionGateTryAcquire(t *testing.T) {
	g := llm.NewAdmissionGate(1)

	if !g.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if g.TryAcquire() {
		t.Fatal("second TryAcquire should fail while the slot is held")
	}
	g.Release()
	if !g.TryAcquire() {
		t.Fatal("TryAcquire should succeed after Release")
	}
	g.Release()
}

func TestAdmissionGateAcquireHonorsContext(t *testing.T) {
	g := llm.NewAdmissionGate(1)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); err == nil {
		g.Release()
		t.Fatal("Acquire on a full gate should fail when the context expires")
	}
}
