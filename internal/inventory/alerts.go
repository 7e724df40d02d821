package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"greenfloor/internal/audit"
	"greenfloor/internal/config"
	"greenfloor/internal/models"
	"greenfloor/internal/notify"
	"greenfloor/internal/repository"
)

const (
	ReasonLowTriggered = "low_triggered"
	ReasonReminderSent = "reminder_sent"
)

type AlertState struct {
	IsLow       bool
	LastAlertAt *time.Time
}

// Threshold is the market threshold, else the program default, else the low watermark.
func Threshold(program config.LowInventoryConfig, m config.MarketConfig) int64 {
	if m.Inventory.AlertThresholdBaseUnits > 0 {
		return m.Inventory.AlertThresholdBaseUnits
	}
	if program.DefaultThresholdBaseUnits > 0 {
		return program.DefaultThresholdBaseUnits
	}
	return m.Inventory.LowWatermarkBaseUnits
}

// EvaluateAlert is pure. The low flag clears only once remaining climbs back
// above threshold plus the hysteresis margin.
func EvaluateAlert(now time.Time, program config.LowInventoryConfig, m config.MarketConfig, state AlertState, remaining int64) (AlertState, *notify.Alert) {
	if !m.Enabled || !program.Enabled {
		return state, nil
	}
	threshold := Threshold(program, m)
	clearAt := threshold * int64(100+program.ClearHysteresisPercent) / 100

	next := state
	if remaining >= clearAt {
		next.IsLow = false
		return next, nil
	}
	if remaining >= threshold {
		return next, nil
	}

	send, reason := false, ReasonLowTriggered
	switch {
	case !state.IsLow, state.LastAlertAt == nil:
		send = true
	default:
		send = now.Sub(*state.LastAlertAt) >= program.DedupCooldown
		reason = ReasonReminderSent
	}
	next.IsLow = true
	if !send {
		return next, nil
	}
	at := now
	next.LastAlertAt = &at
	return next, &notify.Alert{
		MarketID:       m.ID,
		Ticker:         m.BaseSymbol,
		Remaining:      remaining,
		ReceiveAddress: m.ReceiveAddress,
		Reason:         reason,
	}
}

// Alerter persists alert state and delivers notifications.
type Alerter struct {
	Repo     repository.AlertRepository
	Notifier notify.Notifier
	Audit    audit.Recorder
	Logger   *zap.Logger
	Config   config.LowInventoryConfig
	Now      func() time.Time
}

// Check returns the alert that was sent, if any. Delivery failures are logged
// and still advance the dedup clock.
func (a *Alerter) Check(ctx context.Context, m config.MarketConfig, remaining int64) (*notify.Alert, error) {
	if a == nil || a.Repo == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	if a.Now != nil {
		now = a.Now().UTC()
	}
	stored, err := a.Repo.GetAlertState(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	state := AlertState{}
	if stored != nil {
		state = AlertState{IsLow: stored.IsLow, LastAlertAt: stored.LastAlertAt}
	}
	next, alert := EvaluateAlert(now, a.Config, m, state, remaining)
	if next.IsLow != state.IsLow || !sameTime(next.LastAlertAt, state.LastAlertAt) {
		if err := a.Repo.UpsertAlertState(ctx, &models.AlertState{MarketID: m.ID, IsLow: next.IsLow, LastAlertAt: next.LastAlertAt}); err != nil {
			return nil, err
		}
	}
	if alert == nil {
		return nil, nil
	}
	if a.Notifier != nil {
		if err := a.Notifier.Notify(ctx, *alert); err != nil && a.Logger != nil {
			a.Logger.Warn("low inventory notify failed", zap.String("market_id", m.ID), zap.Error(err))
		}
	}
	if a.Audit != nil {
		_ = a.Audit.Record(ctx, audit.EventLowInventory, m.ID, map[string]any{
			"reason":          alert.Reason,
			"remaining":       alert.Remaining,
			"threshold":       Threshold(a.Config, m),
			"receive_address": alert.ReceiveAddress,
		})
	}
	return alert, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
