package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"greenfloor/internal/audit"
	"greenfloor/internal/executor"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	f.now = f.now.Add(d)
	return nil
}

func newTestWaiter(rec audit.Recorder) (*Waiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	return &Waiter{Audit: rec, Poll: time.Second, StillWaiting: 5 * time.Second, Now: clock.Now, Sleep: clock.Sleep}, clock
}

func TestWaitTimeoutIsDistinguishable(t *testing.T) {
	rec := &recorder{}
	w, _ := newTestWaiter(rec)
	err := w.Wait(context.Background(), WaitMempool, "m1", 12*time.Second, func(context.Context) (bool, error) {
		return false, nil
	})
	var we *WaitError
	if !errors.As(err, &we) {
		t.Fatalf("err=%v want WaitError", err)
	}
	if got := executor.ReasonOf(err); got != "mempool_timeout" {
		t.Fatalf("reason=%s want=mempool_timeout", got)
	}
	if n := rec.count(audit.EventStillWaiting); n != 2 {
		t.Fatalf("still_waiting=%d want=2", n)
	}
	if n := rec.count(audit.EventWaitTimeout); n != 1 {
		t.Fatalf("wait_timeout=%d want=1", n)
	}
}

func TestWaitSucceeds(t *testing.T) {
	w, _ := newTestWaiter(nil)
	calls := 0
	err := w.Wait(context.Background(), WaitSignature, "m1", time.Minute, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestWaitCheckErrorEndsWait(t *testing.T) {
	w, _ := newTestWaiter(nil)
	boom := errors.New("boom")
	if err := w.Wait(context.Background(), WaitConfirmation, "m1", time.Minute, func(context.Context) (bool, error) {
		return false, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
}

type heights struct{ seq []int64 }

func (h *heights) PeakHeight(context.Context) (int64, error) {
	v := h.seq[0]
	if len(h.seq) > 1 {
		h.seq = h.seq[1:]
	}
	return v, nil
}

func TestWaitReorgSafe(t *testing.T) {
	w, _ := newTestWaiter(nil)
	chain := &heights{seq: []int64{100, 101, 102, 103}}
	if err := w.WaitReorgSafe(context.Background(), "m1", chain, 100, 3, time.Minute); err != nil {
		t.Fatalf("reorg wait: %v", err)
	}
	if len(chain.seq) != 1 {
		t.Fatalf("peak polled %d times too few", 4-len(chain.seq))
	}

	chain = &heights{seq: []int64{100}}
	err := w.WaitReorgSafe(context.Background(), "m1", chain, 100, 2, 3*time.Second)
	if executor.ReasonOf(err) != "reorg_timeout" {
		t.Fatalf("err=%v want reorg_timeout", err)
	}
	if err := w.WaitReorgSafe(context.Background(), "m1", chain, 100, 0, time.Second); err != nil {
		t.Fatalf("zero extra confirmations must not wait: %v", err)
	}
}
