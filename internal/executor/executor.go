package executor

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"greenfloor/internal/config"
)

type Kind string

const (
	KindPost   Kind = "post"
	KindCancel Kind = "cancel"
)

const (
	ReasonRetryExhausted = "retry_exhausted"
	ReasonCooldownActive = "cooldown_active"
	ReasonCancelled      = "cancelled"
)

const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	Mode        string
	MaxBackoff  time.Duration
	Cooldown    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 2, Backoff: 250 * time.Millisecond, Mode: BackoffExponential, Cooldown: 30 * time.Second}
}

func PolicyFromConfig(c config.RetryPolicyConfig) Policy {
	p := Policy{
		MaxAttempts: c.MaxAttempts,
		Backoff:     c.Backoff,
		Mode:        c.BackoffMode,
		MaxBackoff:  c.MaxBackoff,
		Cooldown:    c.Cooldown,
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Mode == "" {
		p.Mode = BackoffExponential
	}
	return p
}

func (p Policy) backoff() retry.Backoff {
	base := p.Backoff
	if base <= 0 {
		base = time.Millisecond
	}
	var b retry.Backoff
	if p.Mode == BackoffFixed {
		b = retry.NewConstant(base)
	} else {
		b = retry.NewExponential(base)
	}
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Outcome is the structured result of one guarded operation.
type Outcome struct {
	Kind              Kind          `json:"kind"`
	MarketID          string        `json:"market_id"`
	Success           bool          `json:"success"`
	Attempts          int           `json:"attempts"`
	Reason            string        `json:"reason,omitempty"`
	Err               error         `json:"-"`
	Error             string        `json:"error,omitempty"`
	CooldownRemaining time.Duration `json:"cooldown_remaining,omitempty"`
}

// Executor wraps post and cancel attempts with bounded retries and a cooldown per
// (market, kind).
type Executor struct {
	Policies  map[Kind]Policy
	Cooldowns CooldownStore
	Logger    *zap.Logger
	Now       func() time.Time
}

func New(cfg config.RetryConfig, cooldowns CooldownStore, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Policies: map[Kind]Policy{
			KindPost:   PolicyFromConfig(cfg.Post),
			KindCancel: PolicyFromConfig(cfg.Cancel),
		},
		Cooldowns: cooldowns,
		Logger:    logger,
	}
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Executor) policy(kind Kind) Policy {
	if p, ok := e.Policies[kind]; ok {
		return p
	}
	return DefaultPolicy()
}

func CooldownKey(marketID string, kind Kind) string {
	return marketID + ":" + string(kind)
}

// Do runs fn at most MaxAttempts times. Only transient errors are retried. During
// cooldown fn is not called at all.
func (e *Executor) Do(ctx context.Context, kind Kind, marketID string, fn func(ctx context.Context) error) Outcome {
	out := Outcome{Kind: kind, MarketID: marketID}
	key := CooldownKey(marketID, kind)
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if e.Cooldowns != nil {
		until, active, err := e.Cooldowns.Until(ctx, key)
		if err != nil {
			logger.Warn("cooldown lookup failed", zap.String("key", key), zap.Error(err))
		} else if active {
			out.Reason = ReasonCooldownActive
			out.CooldownRemaining = until.Sub(e.now())
			return out
		}
	}

	p := e.policy(kind)
	var lastErr error
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		out.Attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		out.Success = true
		return out
	}
	if lastErr == nil {
		lastErr = err
	}
	out.Err = lastErr
	out.Error = lastErr.Error()

	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		out.Reason = ReasonCancelled
	case IsTransient(lastErr):
		out.Reason = ReasonRetryExhausted
		if p.Cooldown > 0 && e.Cooldowns != nil {
			until := e.now().Add(p.Cooldown)
			if err := e.Cooldowns.Start(ctx, key, until); err != nil {
				logger.Warn("cooldown start failed", zap.String("key", key), zap.Error(err))
			}
			out.CooldownRemaining = p.Cooldown
		}
		logger.Warn("operation retries exhausted",
			zap.String("kind", string(kind)),
			zap.String("market_id", marketID),
			zap.Int("attempts", out.Attempts),
			zap.Duration("cooldown", p.Cooldown),
			zap.Error(lastErr),
		)
	default:
		out.Reason = ReasonOf(lastErr)
	}
	return out
}

// ClearCooldown lifts an active cooldown so the next cycle may try again.
func (e *Executor) ClearCooldown(ctx context.Context, marketID string, kind Kind) error {
	if e.Cooldowns == nil {
		return nil
	}
	return e.Cooldowns.Clear(ctx, CooldownKey(marketID, kind))
}

// Cooldown reports the remaining quiet time for (market, kind).
func (e *Executor) Cooldown(ctx context.Context, marketID string, kind Kind) (time.Duration, error) {
	if e.Cooldowns == nil {
		return 0, nil
	}
	until, active, err := e.Cooldowns.Until(ctx, CooldownKey(marketID, kind))
	if err != nil || !active {
		return 0, err
	}
	return until.Sub(e.now()), nil
}
