package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"greenfloor/internal/audit"
	"greenfloor/internal/client/coinset"
	"greenfloor/internal/client/price"
	"greenfloor/internal/client/venue"
	"greenfloor/internal/config"
	"greenfloor/internal/executor"
	"greenfloor/internal/feebudget"
	"greenfloor/internal/inventory"
	"greenfloor/internal/metrics"
	"greenfloor/internal/notify"
	"greenfloor/internal/paas"
	"greenfloor/internal/reconcile"
	"greenfloor/internal/repository"
	"greenfloor/internal/service"
	"greenfloor/internal/signer"
)

type PriceSource interface {
	XCHPriceUSD(ctx context.Context) (price.Quote, error)
}

type InventorySource interface {
	Snapshot(ctx context.Context, m config.MarketConfig) (inventory.Snapshot, error)
}

type InventoryAlerter interface {
	Check(ctx context.Context, m config.MarketConfig, remaining int64) (*notify.Alert, error)
}

type Reconciler interface {
	Run(ctx context.Context, marketID string) (reconcile.Result, error)
}

// LedgerClient is the broadcast side of the ledger.
type LedgerClient interface {
	HeightSource
	PushTx(ctx context.Context, spendBundleHex string) (coinset.PushResult, error)
	ConservativeFeeEstimate(ctx context.Context, targetSeconds int) (int64, bool, error)
}

// StorageError marks failures of the cycle's own store. They abort the cycle.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storage(err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Err: err}
}

func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Cycle drives one pass over all enabled markets. It owns its store handle;
// the listener writes through its own.
type Cycle struct {
	Runtime   *RuntimeContext
	Repo      repository.Repository
	Audit     audit.Recorder
	Logger    *zap.Logger
	Prices    PriceSource
	Inventory InventorySource
	Alerts    InventoryAlerter
	Budget    *feebudget.Ledger
	Signer    signer.Builder
	Ledger    LedgerClient
	Venue     venue.Venue
	Executor  *executor.Executor
	Reconcile Reconciler
	Waiter    *Waiter
	Flags     *service.SystemSettingsService
	Metrics   *metrics.Metrics
	Sinks     []SummarySink
	// Health checks the store before a cycle starts.
	Health func(ctx context.Context) error

	mu      sync.Mutex
	last    *CycleSummary
	running bool
}

func (c *Cycle) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Cycle) program() *config.Config {
	if c.Runtime == nil || c.Runtime.Program == nil {
		return &config.Config{}
	}
	return c.Runtime.Program
}

func (c *Cycle) enabled(ctx context.Context, key string) bool {
	return c.Flags.IsEnabled(ctx, key, service.DefaultFeatureSwitches()[key])
}

func (c *Cycle) record(ctx context.Context, eventType, marketID string, payload map[string]any) {
	if c.Audit == nil {
		return
	}
	if err := c.Audit.Record(ctx, eventType, marketID, payload); err != nil {
		c.logger().Warn("audit write failed", zap.String("event", eventType), zap.Error(err))
	}
}

// Last returns the most recent finished cycle.
func (c *Cycle) Last() (CycleSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return CycleSummary{}, false
	}
	return *c.last, true
}

// Run loops every interval until ctx ends.
func (c *Cycle) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := c.RunOnce(ctx); err != nil {
			c.logger().Warn("daemon cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes one cycle. Market failures are counted in the summary;
// only storage failures are returned.
func (c *Cycle) RunOnce(ctx context.Context) (CycleSummary, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return CycleSummary{Skipped: true, Error: "cycle already running"}, nil
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	start := c.Runtime.Clock()
	sum := CycleSummary{
		CycleID:      uuid.NewString(),
		StartedAt:    start,
		DryRun:       c.Runtime != nil && c.Runtime.DryRun,
		MarketErrors: map[string]string{},
	}
	if !c.enabled(ctx, service.FeatureDaemonCycle) {
		sum.Skipped = true
		return sum, nil
	}

	err := c.runOnce(ctx, &sum)
	if err != nil {
		sum.Aborted = true
		sum.Error = err.Error()
		c.record(ctx, audit.EventCycleError, "", map[string]any{"cycle_id": sum.CycleID, "error": err.Error(), "aborted": true})
	}
	sum.FinishedAt = c.Runtime.Clock()
	sum.DurationMs = sum.FinishedAt.Sub(start).Milliseconds()
	c.publish(ctx, sum)
	return sum, err
}

func (c *Cycle) runOnce(ctx context.Context, sum *CycleSummary) error {
	if c.Health != nil {
		if err := c.Health(ctx); err != nil {
			return storage(err)
		}
	}
	if c.Runtime != nil {
		reloaded, err := ConsumeReload(c.Runtime.StateDir)
		if err != nil {
			c.logger().Warn("reload marker check failed", zap.Error(err))
		}
		if reloaded {
			sum.Reloaded = true
			n, err := c.Runtime.ReloadMarkets()
			payload := map[string]any{"enabled_markets": n}
			if err != nil {
				payload["error"] = err.Error()
			}
			c.record(ctx, audit.EventConfigReloaded, "", payload)
		}
	}

	xch := c.refreshPrice(ctx, sum)

	for _, m := range c.Runtime.Markets().Enabled() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := c.runMarket(ctx, m, xch)
		if err != nil {
			return fmt.Errorf("market %s: %w", m.ID, err)
		}
		sum.MarketsProcessed++
		sum.merge(res)
		if len(res.Errors) > 0 {
			sum.MarketsFailed++
			msg := strings.Join(res.Errors, "; ")
			sum.MarketErrors[m.ID] = msg
			if c.Metrics != nil {
				c.Metrics.MarketErrors.WithLabelValues(m.ID).Inc()
			}
			c.record(ctx, audit.EventCycleError, m.ID, map[string]any{"cycle_id": sum.CycleID, "error": msg})
		}
	}

	if c.Reconcile != nil && c.enabled(ctx, service.FeatureReconcile) {
		agg := reconcile.Result{}
		for _, m := range c.Runtime.Markets().Enabled() {
			r, err := c.Reconcile.Run(ctx, m.ID)
			if err != nil {
				return storage(err)
			}
			agg.Add(r)
		}
		sum.Reconcile = agg
		if c.Metrics != nil {
			c.Metrics.ObserveReconcile(map[string]int{
				"transitioned":          agg.Transitioned,
				"orphaned":              agg.Orphaned,
				"unknown":               agg.Unknown,
				"completed_by_chain":    agg.CompletedByChain,
				"completed_by_fallback": agg.CompletedByFallback,
				"expired":               agg.Expired,
				"errors":                agg.Errors,
			})
		}
	}

	if c.Budget != nil {
		spent, err := c.Budget.SpentToday(ctx)
		if err != nil {
			return storage(err)
		}
		sum.FeeCommittedMojos = spent
	}
	return nil
}

func (c *Cycle) refreshPrice(ctx context.Context, sum *CycleSummary) *decimal.Decimal {
	if c.Prices == nil {
		return nil
	}
	q, err := c.Prices.XCHPriceUSD(ctx)
	if err != nil {
		c.logger().Warn("price refresh failed", zap.Error(err))
		return nil
	}
	sum.XCHPriceUSD = q.PriceUSD.String()
	sum.PriceStale = q.Stale
	p := q.PriceUSD
	return &p
}

// runMarket runs every step for one market. Step failures are collected in the
// result; only a storage failure is returned.
func (c *Cycle) runMarket(ctx context.Context, m config.MarketConfig, xch *decimal.Decimal) (marketResult, error) {
	var res marketResult

	var snap *inventory.Snapshot
	if c.Inventory != nil {
		s, err := c.Inventory.Snapshot(ctx, m)
		if err != nil {
			res.fail("inventory", err)
		} else {
			snap = &s
		}
	}

	if snap != nil && c.Alerts != nil && c.enabled(ctx, service.FeatureLowInventoryAlerts) {
		if _, err := c.Alerts.Check(ctx, m, snap.Spendable); err != nil {
			return res, storage(err)
		}
	}

	if snap != nil && c.enabled(ctx, service.FeatureCoinOps) {
		if err := c.runCoinOps(ctx, m, *snap, &res); err != nil {
			if IsStorage(err) {
				return res, err
			}
			res.fail("coin_ops", err)
		}
	}

	if err := c.runStrategy(ctx, m, xch, &res); err != nil {
		if IsStorage(err) {
			return res, err
		}
		res.fail("strategy", err)
	}

	if c.program().CancelPolicy.Enabled && c.enabled(ctx, service.FeatureCancelPolicy) {
		if err := c.runCancelPolicy(ctx, m, xch, &res); err != nil {
			if IsStorage(err) {
				return res, err
			}
			res.fail("cancel_policy", err)
		}
	}
	return res, nil
}

func (c *Cycle) publish(ctx context.Context, sum CycleSummary) {
	c.mu.Lock()
	last := sum
	c.last = &last
	c.mu.Unlock()

	if !sum.Aborted {
		c.record(ctx, audit.EventCycleSummary, "", sum.Payload())
	}
	sample := sum.Sample()
	if c.Metrics != nil {
		c.Metrics.ObserveCycle(sample)
	}
	for _, sink := range c.Sinks {
		if err := sink.Publish(ctx, sample); err != nil {
			c.logger().Warn("cycle summary sink failed", zap.Error(err))
		}
	}
	level := "info"
	if sample.Failed {
		level = "warn"
	}
	paas.LogBestEffortCtx(ctx, "daemon_cycle", level, sum.Payload())
	c.logger().Info("daemon cycle finished",
		zap.String("cycle_id", sum.CycleID),
		zap.Int("markets", sum.MarketsProcessed),
		zap.Int("markets_failed", sum.MarketsFailed),
		zap.Int("offers_posted", sum.OffersPosted),
		zap.Int("coin_ops_executed", sum.CoinOpsExecuted),
		zap.Int64("duration_ms", sum.DurationMs),
		zap.Bool("aborted", sum.Aborted),
	)
}
