package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "forwarder_sweeps_total",
	Help: "Number of completed polling sweeps",
})

var SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "forwarder_sweep_duration_seconds",
	Help:    "Duration of a polling sweep",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
})

var MessagesEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "forwarder_messages_evaluated_total",
	Help: "Number of messages run through the forwarding gate, by decision",
}, []string{"decision"})

var ForwardsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "forwarder_forwards_total",
	Help: "Number of messages forwarded to the target channel",
})

var ChannelsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "forwarder_channels_skipped_total",
	Help: "Number of channels skipped during a sweep, by reason",
}, []string{"reason"})

var LedgerWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "forwarder_ledger_write_errors_total",
	Help: "Number of failed ledger writes",
})

var FloodWaits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "forwarder_flood_waits_total",
	Help: "Number of rate-limit signals received from the platform, by operation",
}, []string{"op"})
