package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	//nolint: revive
	DeploysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deporch_deploys_total",
			Help: "The total number of deploy runs by terminal outcome",
		},
		[]string{"outcome"},
	)

	//nolint: revive
	GateTimer = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "deporch_gate_timer",
			Help: "The duration (seconds) spent in each pipeline gate",
		},
		[]string{"gate"},
	)

	//nolint: revive
	GateFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deporch_gate_failed",
			Help: "The total number of gate failures by gate",
		},
		[]string{"gate"},
	)

	//nolint: revive
	RollbacksIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deporch_rollbacks_issued",
			Help: "The total number of rollback requests accepted by the control plane",
		},
	)

	//nolint: revive
	RollbacksFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deporch_rollbacks_failed",
			Help: "The total number of rollback requests the control plane rejected",
		},
	)

	//nolint: revive
	RollbacksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deporch_rollbacks_skipped",
			Help: "The total number of failed runs with no prior revision to revert to",
		},
	)

	//nolint: revive
	PostRecordTimer = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "deporch_post_record_timer",
			Help: "The duration (seconds) for posting a deploy record to the metadata API",
		},
	)

	//nolint: revive
	PostRecordOk = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deporch_post_record_ok",
			Help: "The total number of successful record posts",
		},
	)

	//nolint: revive
	PostRecordSoftFail = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deporch_post_record_soft_fail",
			Help: "The total number of soft (recoverable) record post failures",
		},
	)

	//nolint: revive
	PostRecordHardFail = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deporch_post_record_hard_fail",
			Help: "The total number of hard record post failures",
		},
	)

	//nolint: revive
	PostRecordClientError = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deporch_post_record_client_error",
			Help: "The total number of non-retryable record post failures",
		},
	)
)
