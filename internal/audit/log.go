package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"greenfloor/internal/models"
	"greenfloor/internal/repository"
)

// Event types written by the daemon.
const (
	EventOfferStateChanged   = "offer_state_changed"
	EventOfferFlagged        = "offer_flagged"
	EventTakerDetection      = "taker_detection"
	EventTakerDiagnostic     = "taker_diagnostic_signal"
	EventReconciliationPass  = "reconciliation_pass"
	EventCoinOpPlanned       = "coin_op_planned"
	EventCoinOpExecuted      = "coin_op_executed"
	EventCoinOpSkipped       = "coin_op_skipped"
	EventOfferPosted         = "offer_posted"
	EventOfferPostFailed     = "offer_post_failed"
	EventOfferCancelled      = "offer_cancel_requested"
	EventOfferCancelFailed   = "offer_cancel_failed"
	EventCancelPolicy        = "cancel_policy_triggered"
	EventLowInventory        = "low_inventory_alert"
	EventCycleSummary        = "daemon_cycle_summary"
	EventCycleError          = "daemon_cycle_error"
	EventConfigReloaded      = "config_reloaded"
	EventStillWaiting        = "still_waiting"
	EventWaitTimeout         = "wait_timeout"
	EventWSConnecting        = "coinset_ws_connecting"
	EventWSConnected         = "coinset_ws_connected"
	EventWSDisconnected      = "coinset_ws_disconnected"
	EventWSRecoveryPoll      = "coinset_ws_recovery_poll"
	EventWSRecoveryError     = "coinset_ws_recovery_poll_error"
	EventWSMempool           = "coinset_mempool_event"
	EventWSTxBlock           = "coinset_tx_block_event"
	EventWSPayloadParseError = "coinset_ws_payload_parse_error"
	EventTxBlockWebhook      = "coinset_tx_block_webhook"
)

// Recorder is what components depend on to write audit events.
type Recorder interface {
	Record(ctx context.Context, eventType string, marketID string, payload map[string]any) error
}

// Sink receives every event after it is stored.
type Sink interface {
	Publish(ctx context.Context, event models.AuditEvent) error
}

type Log struct {
	Repo   repository.AuditRepository
	Logger *zap.Logger
	Sinks  []Sink
	Now    func() time.Time
}

func New(repo repository.AuditRepository, logger *zap.Logger, sinks ...Sink) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{Repo: repo, Logger: logger, Sinks: sinks}
}

// Record appends one event. The payload is encoded with sorted keys.
func (l *Log) Record(ctx context.Context, eventType string, marketID string, payload map[string]any) error {
	if l == nil || l.Repo == nil {
		return nil
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("audit: event type is required")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("audit: encode payload: %w", err)
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	item := &models.AuditEvent{
		EventType: eventType,
		MarketID:  strings.TrimSpace(marketID),
		Payload:   datatypes.JSON(raw),
		CreatedAt: now().UTC(),
	}
	if err := l.Repo.InsertAuditEvent(ctx, item); err != nil {
		return fmt.Errorf("audit: insert %s: %w", eventType, err)
	}
	for _, sink := range l.Sinks {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, *item); err != nil {
			l.logger().Warn("audit sink publish failed", zap.String("event_type", eventType), zap.Error(err))
		}
	}
	return nil
}

func (l *Log) logger() *zap.Logger {
	if l == nil || l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, string, string, map[string]any) error { return nil }
