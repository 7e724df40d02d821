package daemon

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"greenfloor/internal/audit"
	"greenfloor/internal/coinops"
	"greenfloor/internal/config"
	"greenfloor/internal/executor"
	"greenfloor/internal/feebudget"
	"greenfloor/internal/inventory"
	"greenfloor/internal/models"
	"greenfloor/internal/signer"
)

const reasonPushRejected = "push_tx_rejected"

// feeEstimates returns the per-op split and combine fees for this pass.
func (c *Cycle) feeEstimates(ctx context.Context) (int64, int64) {
	cfg := c.program().CoinOps
	split, combine := cfg.SplitFeeMojos, cfg.CombineFeeMojos
	if !cfg.UseLedgerFeeEstimate || c.Ledger == nil {
		return split, combine
	}
	fee, ok, err := c.Ledger.ConservativeFeeEstimate(ctx, cfg.FeeEstimateTargetSeconds)
	if err != nil {
		c.logger().Warn("ledger fee estimate failed, using configured fees", zap.Error(err))
		return split, combine
	}
	if !ok {
		return split, combine
	}
	return fee, fee
}

func (c *Cycle) runCoinOps(ctx context.Context, m config.MarketConfig, snap inventory.Snapshot, res *marketResult) error {
	if len(m.Ladders[config.SideSell]) == 0 {
		return nil
	}
	split, combine := c.feeEstimates(ctx)
	plan := coinops.Plan(coinops.PlanInput{
		MarketID:            m.ID,
		Sides:               []coinops.SideInventory{snap.SideInventory(m, config.SideSell)},
		MaxOperationsPerRun: c.program().CoinOps.MaxOperationsPerRun,
		SplitFeeMojos:       split,
		CombineFeeMojos:     combine,
	})
	for _, d := range plan.Deferred {
		c.record(ctx, audit.EventCoinOpSkipped, m.ID, planPayload(d.Plan, d.Reason, ""))
	}
	if len(plan.Plans) == 0 {
		return nil
	}
	res.CoinOpsPlanned += len(plan.Plans)
	c.record(ctx, audit.EventCoinOpPlanned, m.ID, map[string]any{"count": len(plan.Plans), "plans": plan.Plans})

	if c.Budget == nil {
		return fmt.Errorf("fee budget ledger is not configured")
	}
	dryRun := c.Runtime != nil && c.Runtime.DryRun
	adm, err := c.Budget.Admit(ctx, m.ID, plan.Plans, dryRun)
	if err != nil {
		return storage(err)
	}
	for _, s := range adm.Skipped {
		res.CoinOpsSkipped++
		c.record(ctx, audit.EventCoinOpSkipped, m.ID, planPayload(s.Plan, s.Reason, ""))
		c.countCoinOp(s.Plan.OpType, "skipped")
	}
	if dryRun {
		return nil
	}
	for _, op := range adm.Admitted {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		done, err := c.executeCoinOp(ctx, m, op)
		if err != nil {
			res.CoinOpsFailed++
			reason := executor.ReasonOf(err)
			if serr := c.Budget.RecordFailed(ctx, op.OperationID, reason); serr != nil {
				return storage(serr)
			}
			payload := planPayload(op.Plan, reason, op.OperationID)
			payload["error"] = err.Error()
			c.record(ctx, audit.EventCoinOpSkipped, m.ID, payload)
			c.countCoinOp(op.Plan.OpType, "failed")
			continue
		}
		// The fee is spent once the ledger accepted the bundle.
		if err := c.Budget.RecordExecuted(ctx, op.OperationID); err != nil {
			return storage(err)
		}
		res.CoinOpsExecuted++
		payload := planPayload(op.Plan, "", op.OperationID)
		payload["tx_id"] = done.TxID
		if done.WaitErr != nil {
			payload["wait_reason"] = executor.ReasonOf(done.WaitErr)
		}
		c.record(ctx, audit.EventCoinOpExecuted, m.ID, payload)
		c.countCoinOp(op.Plan.OpType, "executed")
		if IsStorage(done.WaitErr) {
			return done.WaitErr
		}
	}
	return nil
}

type broadcast struct {
	TxID string
	// WaitErr is set when a wait after the broadcast failed.
	WaitErr error
}

// executeCoinOp signs and broadcasts one admitted op, then follows it through
// the configured waits. A wait failure does not undo the broadcast.
func (c *Cycle) executeCoinOp(ctx context.Context, m config.MarketConfig, op feebudget.AdmittedOp) (broadcast, error) {
	if c.Signer == nil || c.Ledger == nil {
		return broadcast{}, fmt.Errorf("coin ops need a signer and a ledger client")
	}
	size := op.Plan.AmountPerCoin
	bundle, err := c.Signer.SignCoinOp(ctx, signer.CoinOpRequest{
		OperationID:    op.OperationID,
		KeyID:          c.Runtime.KeyFor(m),
		Network:        c.Runtime.Network,
		ReceiveAddress: m.ReceiveAddress,
		AssetID:        op.Plan.AssetID,
		OpType:         op.Plan.OpType,
		SizeBaseUnits:  size,
		OpCount:        op.Plan.NumberOfCoins,
		FeeMojos:       op.Plan.EstimatedFeeMojos,
	})
	if err != nil {
		return broadcast{}, err
	}
	push, err := c.Ledger.PushTx(ctx, bundle.Hex)
	if err != nil {
		return broadcast{}, err
	}
	if !push.Success {
		msg := push.Error
		if msg == "" {
			msg = push.Status
		}
		return broadcast{}, executor.Permanent(reasonPushRejected, fmt.Errorf("push_tx: %s", msg))
	}
	return broadcast{TxID: bundle.TxID, WaitErr: c.followTx(ctx, m.ID, bundle.TxID)}, nil
}

// followTx waits for mempool, then confirmation, then the extra reorg depth.
// Each stage is skipped when its timeout is zero.
func (c *Cycle) followTx(ctx context.Context, marketID, txID string) error {
	waits := c.program().Waits
	if c.Waiter == nil || txID == "" {
		return nil
	}
	if waits.MempoolTimeout > 0 {
		err := c.Waiter.Wait(ctx, WaitMempool, marketID, waits.MempoolTimeout, func(ctx context.Context) (bool, error) {
			st, err := c.txState(ctx, txID)
			return st != models.TxStateNone, err
		})
		if err != nil {
			return err
		}
	}
	if waits.ConfirmationTimeout <= 0 {
		return nil
	}
	err := c.Waiter.Wait(ctx, WaitConfirmation, marketID, waits.ConfirmationTimeout, func(ctx context.Context) (bool, error) {
		st, err := c.txState(ctx, txID)
		return st == models.TxStateBlockConfirmed, err
	})
	if err != nil || waits.ReorgConfirmations <= 0 {
		return err
	}
	height, err := c.Ledger.PeakHeight(ctx)
	if err != nil {
		return err
	}
	return c.Waiter.WaitReorgSafe(ctx, marketID, c.Ledger, height, waits.ReorgConfirmations, waits.ReorgTimeout)
}

func (c *Cycle) txState(ctx context.Context, txID string) (string, error) {
	sigs, err := c.Repo.GetTxSignals(ctx, []string{txID})
	if err != nil {
		return "", storage(err)
	}
	return sigs[txID].State(), nil
}

func (c *Cycle) countCoinOp(opType, status string) {
	if c.Metrics != nil {
		c.Metrics.CoinOps.WithLabelValues(opType, status).Inc()
	}
}

func planPayload(p models.CoinOpPlan, reason, operationID string) map[string]any {
	out := map[string]any{
		"op_type":             p.OpType,
		"side":                p.Side,
		"asset_id":            p.AssetID,
		"amount_per_coin":     p.AmountPerCoin,
		"number_of_coins":     p.NumberOfCoins,
		"op_count":            p.OpCount,
		"priority":            p.Priority,
		"estimated_fee_mojos": p.EstimatedFeeMojos,
	}
	if reason != "" {
		out["reason"] = reason
	}
	if operationID != "" {
		out["operation_id"] = operationID
	}
	return out
}
