package feebudget

import "greenfloor/internal/models"

const (
	ReasonExceeded        = "fee_budget_exceeded"
	ReasonPartialOverflow = "fee_budget_partial_overflow"
)

type Skipped struct {
	Plan   models.CoinOpPlan
	Reason string
}

type Partitioned struct {
	Admitted  []models.CoinOpPlan
	Skipped   []Skipped
	Remaining int64
}

// Partition walks plans in priority order and admits whatever still fits in
// cap-spent. A plan that does not fit is skipped and the walk continues, so a
// cheaper lower-priority plan can still run. Multi-op plans are split at the last
// op that fits. cap <= 0 means no cap.
func Partition(plans []models.CoinOpPlan, spent int64, cap int64) Partitioned {
	var out Partitioned
	if cap <= 0 {
		out.Admitted = append(out.Admitted, plans...)
		out.Remaining = -1
		return out
	}
	remaining := cap - spent
	if remaining < 0 {
		remaining = 0
	}
	for _, p := range plans {
		fee := p.EstimatedFeeMojos
		if fee <= remaining {
			out.Admitted = append(out.Admitted, p)
			remaining -= fee
			continue
		}
		perOp := p.FeePerOp()
		if p.OpCount > 1 && perOp > 0 && perOp <= remaining {
			fit := int(remaining / perOp)
			head, tail := splitPlan(p, fit)
			out.Admitted = append(out.Admitted, head)
			out.Skipped = append(out.Skipped, Skipped{Plan: tail, Reason: ReasonPartialOverflow})
			remaining -= head.EstimatedFeeMojos
			continue
		}
		out.Skipped = append(out.Skipped, Skipped{Plan: p, Reason: ReasonExceeded})
	}
	out.Remaining = remaining
	return out
}

func splitPlan(p models.CoinOpPlan, fit int) (models.CoinOpPlan, models.CoinOpPlan) {
	perOp := p.FeePerOp()
	head, tail := p, p
	head.OpCount = fit
	head.EstimatedFeeMojos = perOp * int64(fit)
	tail.OpCount = p.OpCount - fit
	tail.EstimatedFeeMojos = p.EstimatedFeeMojos - head.EstimatedFeeMojos
	if p.OpType == models.CoinOpSplit {
		head.NumberOfCoins = head.OpCount
		tail.NumberOfCoins = tail.OpCount
	}
	return head, tail
}
