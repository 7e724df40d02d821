package daemon

import (
	"context"
	"fmt"
	"time"

	"greenfloor/internal/audit"
	"greenfloor/internal/config"
)

// Wait names. The timeout reason is the name with a _timeout suffix.
const (
	WaitSignature    = "signature"
	WaitMempool      = "mempool"
	WaitConfirmation = "confirmation"
	WaitReorg        = "reorg"
)

// WaitError is returned when a wait runs out of time.
type WaitError struct {
	Name    string
	Elapsed time.Duration
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("%s wait timed out after %s", e.Name, e.Elapsed.Truncate(time.Millisecond))
}

func (e *WaitError) ReasonCode() string {
	return e.Name + "_timeout"
}

// Waiter polls a condition until it holds or the timeout passes. still_waiting
// events are advisory and never extend the deadline.
type Waiter struct {
	Audit        audit.Recorder
	Poll         time.Duration
	StillWaiting time.Duration
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
}

func NewWaiter(cfg config.WaitsConfig, rec audit.Recorder) *Waiter {
	return &Waiter{Audit: rec, Poll: cfg.PollInterval, StillWaiting: cfg.StillWaitingInterval}
}

func (w *Waiter) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Waiter) sleep(ctx context.Context, d time.Duration) error {
	if w.Sleep != nil {
		return w.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait calls check until it reports done. A check error ends the wait.
func (w *Waiter) Wait(ctx context.Context, name, marketID string, timeout time.Duration, check func(ctx context.Context) (bool, error)) error {
	poll := w.Poll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	start := w.now()
	lastNotice := start
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		now := w.now()
		elapsed := now.Sub(start)
		if elapsed >= timeout {
			w.record(ctx, audit.EventWaitTimeout, marketID, map[string]any{
				"wait":       name,
				"reason":     name + "_timeout",
				"elapsed_ms": elapsed.Milliseconds(),
				"timeout_ms": timeout.Milliseconds(),
			})
			return &WaitError{Name: name, Elapsed: elapsed}
		}
		if w.StillWaiting > 0 && now.Sub(lastNotice) >= w.StillWaiting {
			lastNotice = now
			w.record(ctx, audit.EventStillWaiting, marketID, map[string]any{
				"wait":       name,
				"elapsed_ms": elapsed.Milliseconds(),
				"timeout_ms": timeout.Milliseconds(),
			})
		}
		if err := w.sleep(ctx, poll); err != nil {
			return err
		}
	}
}

func (w *Waiter) record(ctx context.Context, eventType, marketID string, payload map[string]any) {
	if w.Audit != nil {
		_ = w.Audit.Record(ctx, eventType, marketID, payload)
	}
}

// HeightSource reports the current chain peak.
type HeightSource interface {
	PeakHeight(ctx context.Context) (int64, error)
}

// WaitReorgSafe waits until the peak is extra blocks past confirmedAt.
func (w *Waiter) WaitReorgSafe(ctx context.Context, marketID string, chain HeightSource, confirmedAt int64, extra int, timeout time.Duration) error {
	if extra <= 0 || chain == nil {
		return nil
	}
	target := confirmedAt + int64(extra)
	return w.Wait(ctx, WaitReorg, marketID, timeout, func(ctx context.Context) (bool, error) {
		peak, err := chain.PeakHeight(ctx)
		if err != nil {
			return false, err
		}
		return peak >= target, nil
	})
}
