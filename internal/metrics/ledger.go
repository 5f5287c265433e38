package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ledgerTransactionsTotal,
		ledgerDriftTotal,
		couponRedemptionsTotal,
		topUpsTotal,
	)
}

var (
	ledgerTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Ledger writes by transaction type.",
		},
		[]string{"type"},
	)

	ledgerDriftTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_drift_total",
			Help: "Reconciliations that found a stored balance different from the transaction sum.",
		},
	)

	couponRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupon_redemptions_total",
			Help: "Coupon redemption attempts by outcome (applied or rejection reason).",
		},
		[]string{"outcome"},
	)

	topUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topups_total",
			Help: "Top-up payments by status (initiated/completed/failed).",
		},
		[]string{"status"},
	)
)

func IncTransaction(txType string) {
	ledgerTransactionsTotal.WithLabelValues(norm(txType)).Inc()
}

func IncDrift() {
	ledgerDriftTotal.Inc()
}

func IncCoupon(outcome string) {
	couponRedemptionsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncTopUp(status string) {
	topUpsTotal.WithLabelValues(norm(status)).Inc()
}
