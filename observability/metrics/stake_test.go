package metrics

import (
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStakeMetricsRecordOperations(t *testing.T) {
	m := Stake()
	if Stake() != m {
		t.Fatalf("expected singleton registry")
	}
	m.ObserveOperation("deposit", nil)
	m.ObserveOperation("deposit", nil)
	m.ObserveOperation("deposit", errors.New("boom"))
	if got := testutil.ToFloat64(m.operations.WithLabelValues("deposit")); got != 2 {
		t.Fatalf("expected 2 deposits, got %v", got)
	}
	if got := testutil.ToFloat64(m.rejections.WithLabelValues("deposit")); got != 1 {
		t.Fatalf("expected 1 rejection, got %v", got)
	}

	m.SetTotalStaked(3, big.NewInt(1500))
	if got := testutil.ToFloat64(m.totalStaked.WithLabelValues("3")); got != 1500 {
		t.Fatalf("unexpected total staked %v", got)
	}
	m.AddDeposited(3, big.NewInt(-5))
	if got := testutil.ToFloat64(m.deposited.WithLabelValues("3")); got != 0 {
		t.Fatalf("negative amounts must be ignored, got %v", got)
	}

	var nilMetrics *StakeMetrics
	nilMetrics.ObserveOperation("claim", nil)
	nilMetrics.IncShortfall()
}
