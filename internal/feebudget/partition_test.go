package feebudget

import (
	"testing"

	"greenfloor/internal/models"
)

func split(coins int, perCoin int64, prio int) models.CoinOpPlan {
	return models.CoinOpPlan{OpType: models.CoinOpSplit, NumberOfCoins: coins, OpCount: coins, EstimatedFeeMojos: perCoin * int64(coins), Priority: prio}
}

func combine(fee int64, prio int) models.CoinOpPlan {
	return models.CoinOpPlan{OpType: models.CoinOpCombine, NumberOfCoins: 8, OpCount: 1, EstimatedFeeMojos: fee, Priority: prio}
}

func TestPartitionSkipsAndContinues(t *testing.T) {
	plans := []models.CoinOpPlan{combine(80, 0), combine(30, 1), combine(10, 2)}
	got := Partition(plans, 0, 50)
	if len(got.Admitted) != 2 || got.Admitted[0].Priority != 1 || got.Admitted[1].Priority != 2 {
		t.Fatalf("admitted=%+v", got.Admitted)
	}
	if len(got.Skipped) != 1 || got.Skipped[0].Reason != ReasonExceeded || got.Skipped[0].Plan.Priority != 0 {
		t.Fatalf("skipped=%+v", got.Skipped)
	}
	if got.Remaining != 10 {
		t.Fatalf("remaining=%d want=10", got.Remaining)
	}
}

func TestPartitionPartialOverflow(t *testing.T) {
	got := Partition([]models.CoinOpPlan{split(5, 10, 0)}, 70, 100)
	if len(got.Admitted) != 1 || got.Admitted[0].NumberOfCoins != 3 || got.Admitted[0].EstimatedFeeMojos != 30 {
		t.Fatalf("admitted=%+v", got.Admitted)
	}
	if len(got.Skipped) != 1 || got.Skipped[0].Reason != ReasonPartialOverflow || got.Skipped[0].Plan.NumberOfCoins != 2 {
		t.Fatalf("skipped=%+v", got.Skipped)
	}
	if got.Remaining != 0 {
		t.Fatalf("remaining=%d want=0", got.Remaining)
	}
}

func TestPartitionNeverExceedsCap(t *testing.T) {
	plans := []models.CoinOpPlan{split(4, 7, 0), combine(9, 1), split(3, 11, 2), combine(2, 3)}
	for spent := int64(0); spent <= 60; spent += 3 {
		got := Partition(plans, spent, 60)
		total := spent
		for _, p := range got.Admitted {
			total += p.EstimatedFeeMojos
		}
		if total > 60 && len(got.Admitted) > 0 {
			t.Fatalf("spent=%d total=%d exceeds cap", spent, total)
		}
	}
}

func TestPartitionUnlimited(t *testing.T) {
	got := Partition([]models.CoinOpPlan{split(4, 7, 0)}, 1_000_000, 0)
	if len(got.Admitted) != 1 || len(got.Skipped) != 0 {
		t.Fatalf("got=%+v", got)
	}
}
