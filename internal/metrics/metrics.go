package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbill_calls_total",
			Help: "Call lifecycle counter by outcome",
		},
		[]string{"outcome"}, // started|priced|already_finished|missing_data
	)

	BillingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbill_billing_runs_total",
			Help: "Billing aggregation runs by outcome",
		},
		[]string{"outcome"}, // ok|skipped|failed|lock_busy
	)

	PaymentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "callbill_payments_created_total",
			Help: "Pending payments inserted by billing runs",
		},
	)

	OutboxRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbill_outbox_relayed_total",
			Help: "Outbox events relayed to Kafka by result",
		},
		[]string{"result"}, // ok|failed
	)

	CDRsArchived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "callbill_cdrs_archived_total",
			Help: "Priced CDRs written to ClickHouse",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		CallsTotal,
		BillingRunsTotal,
		PaymentsCreated,
		OutboxRelayed,
		CDRsArchived,
	)
}
