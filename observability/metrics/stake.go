package metrics

import (
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type StakeMetrics struct {
	operations  *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	deposited   *prometheus.CounterVec
	withdrawn   *prometheus.CounterVec
	rewardsPaid prometheus.Counter
	shortfalls  prometheus.Counter
	totalStaked *prometheus.GaugeVec
	height      prometheus.Gauge
}

var (
	stakeOnce     sync.Once
	stakeRegistry *StakeMetrics
)

func Stake() *StakeMetrics {
	stakeOnce.Do(func() {
		stakeRegistry = &StakeMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stake_operations_total",
				Help: "Count of committed staking operations by kind.",
			}, []string{"op"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stake_operation_rejections_total",
				Help: "Count of staking operations rolled back by kind.",
			}, []string{"op"}),
			deposited: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stake_deposited_total",
				Help: "Principal deposited per pool in base units.",
			}, []string{"pool"}),
			withdrawn: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stake_withdrawn_total",
				Help: "Principal withdrawn per pool in base units.",
			}, []string{"pool"}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stake_rewards_paid_total",
				Help: "Reward tokens paid to stakers in base units.",
			}),
			shortfalls: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stake_reward_shortfalls_total",
				Help: "Number of reward payouts the reserve could not fully cover.",
			}),
			totalStaked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "stake_pool_total_staked",
				Help: "Reward-eligible principal per pool in base units.",
			}, []string{"pool"}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "stake_block_height",
				Help: "Current block height of the ledger clock.",
			}),
		}
		prometheus.MustRegister(
			stakeRegistry.operations,
			stakeRegistry.rejections,
			stakeRegistry.deposited,
			stakeRegistry.withdrawn,
			stakeRegistry.rewardsPaid,
			stakeRegistry.shortfalls,
			stakeRegistry.totalStaked,
			stakeRegistry.height,
		)
	})
	return stakeRegistry
}

func (m *StakeMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if err != nil {
		m.rejections.WithLabelValues(op).Inc()
		return
	}
	m.operations.WithLabelValues(op).Inc()
}

func (m *StakeMetrics) AddDeposited(pool uint64, amount *big.Int) {
	if m == nil {
		return
	}
	m.deposited.WithLabelValues(poolLabel(pool)).Add(toFloat(amount))
}

func (m *StakeMetrics) AddWithdrawn(pool uint64, amount *big.Int) {
	if m == nil {
		return
	}
	m.withdrawn.WithLabelValues(poolLabel(pool)).Add(toFloat(amount))
}

func (m *StakeMetrics) AddRewardPaid(amount *big.Int) {
	if m == nil {
		return
	}
	m.rewardsPaid.Add(toFloat(amount))
}

func (m *StakeMetrics) IncShortfall() {
	if m == nil {
		return
	}
	m.shortfalls.Inc()
}

func (m *StakeMetrics) SetTotalStaked(pool uint64, amount *big.Int) {
	if m == nil {
		return
	}
	m.totalStaked.WithLabelValues(poolLabel(pool)).Set(toFloat(amount))
}

func (m *StakeMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

func poolLabel(pool uint64) string {
	return strconv.FormatUint(pool, 10)
}

func toFloat(amount *big.Int) float64 {
	if amount == nil || amount.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	return f
}
