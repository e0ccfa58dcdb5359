package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubVerifier struct {
	mu   sync.Mutex
	errs []error // consumed in order; nil once exhausted
	n    int
}

func (s *stubVerifier) Verify(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

var errCorrupt = errors.New("block 3 hash mismatch")

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheck_healthyLedger(t *testing.T) {
	var recorded []bool
	c := New(&stubVerifier{}, Config{}, zap.NewNop())
	c.SetMetricsRecord(func(ok bool) { recorded = append(recorded, ok) })

	if !c.Check(context.Background()) {
		t.Error("expected healthy")
	}
	st := c.Status()
	if !st.Healthy || st.FailCount != 0 || st.LastChecked.IsZero() {
		t.Errorf("status = %+v", st)
	}
	if len(recorded) != 1 || !recorded[0] {
		t.Errorf("metrics = %v", recorded)
	}
}

func TestCheck_degradesAfterThreshold(t *testing.T) {
	v := &stubVerifier{errs: []error{errCorrupt, errCorrupt, errCorrupt}}
	var transitions []bool
	c := New(v, Config{FailThreshold: 3}, zap.NewNop())
	c.SetStatusHook(func(healthy bool) { transitions = append(transitions, healthy) })

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		if !c.Check(ctx) {
			t.Fatalf("check %d: degraded before threshold", i)
		}
	}
	if c.Check(ctx) {
		t.Fatal("check 3: expected degraded at threshold")
	}
	st := c.Status()
	if st.FailCount != 3 || st.LastError != errCorrupt.Error() {
		t.Errorf("status = %+v", st)
	}

	// Verifier has no more errors queued: next check recovers.
	if !c.Check(ctx) {
		t.Error("expected recovery after a passing check")
	}
	if st := c.Status(); st.FailCount != 0 || st.LastError != "" {
		t.Errorf("status after recovery = %+v", st)
	}

	if len(transitions) != 2 || transitions[0] || !transitions[1] {
		t.Errorf("transitions = %v, want [false true]", transitions)
	}
}

func TestCheck_noTransitionHookWhileStable(t *testing.T) {
	calls := 0
	c := New(&stubVerifier{}, Config{}, zap.NewNop())
	c.SetStatusHook(func(bool) { calls++ })

	for i := 0; i < 3; i++ {
		c.Check(context.Background())
	}
	if calls != 0 {
		t.Errorf("status hook called %d times for a stable ledger", calls)
	}
}

type blockingVerifier struct{}

func (blockingVerifier) Verify(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCheck_timeout(t *testing.T) {
	c := New(blockingVerifier{}, Config{CheckTimeout: 20 * time.Millisecond}, zap.NewNop())

	done := make(chan bool, 1)
	go func() { done <- c.Check(context.Background()) }()

	select {
	case healthy := <-done:
		if healthy {
			t.Error("a timed-out check must count as a failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Check did not honour CheckTimeout")
	}
}

func TestStart_runsUntilCancelled(t *testing.T) {
	v := &stubVerifier{}
	c := New(v, Config{CheckInterval: 5 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(stopped)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		v.mu.Lock()
		n := v.n
		v.mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("checker did not run on its interval")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
