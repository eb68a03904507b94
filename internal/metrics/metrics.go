package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DepositsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_deposits_created_total",
		Help: "Total number of deposit records created",
	})

	ApprovalsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_approvals_recorded_total",
		Help: "Total number of approvals recorded, by role",
	}, []string{"role"})

	ReleasesSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_releases_submitted_total",
		Help: "Total number of release transactions submitted",
	})

	ReleasesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_releases_failed_total",
		Help: "Total number of release attempts that failed and were reverted",
	})

	DepositsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_deposits_cancelled_total",
		Help: "Total number of deposits cancelled",
	})

	CustodyAccountsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_custody_accounts_created_total",
		Help: "Total number of custody accounts provisioned",
	})

	EscrowsInitializedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_escrows_initialized_total",
		Help: "Total number of escrow accounts initialized on the ledger",
	})

	ReleaseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "escrow_release_duration_seconds",
		Help:    "End-to-end duration of release submission and confirmation",
		Buckets: prometheus.DefBuckets,
	})
)
