package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MessagesReceived counts frames decoded by the message source
var MessagesReceived = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pricefeed_messages_received_total",
		Help: "Total number of frames decoded and enqueued by the message source",
	},
)

// MessagesProcessed counts messages applied to the price book
var MessagesProcessed = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pricefeed_messages_processed_total",
		Help: "Total number of messages applied to the price book by the consumer loop",
	},
)

// MessagesSkipped counts messages dropped by reason (decode, missing_field, bad_price)
var MessagesSkipped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricefeed_messages_skipped_total",
		Help: "Total number of messages skipped because they could not be decoded or extracted",
	},
	[]string{"reason"},
)

// ProcessLatency records the time from receipt to application on the price book
var ProcessLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "pricefeed_process_latency_seconds",
		Help:    "Latency in seconds between frame receipt and price book update",
		Buckets: prometheus.DefBuckets,
	},
)

// Queue and connection metrics
var (
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricefeed_queue_depth",
			Help: "Number of messages waiting between the source and the consumer loop",
		},
	)

	ConnectionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_connection_events_total",
			Help: "Message source lifecycle events (open, keepalive, error, close)",
		},
		[]string{"event"},
	)

	SinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_sink_errors_total",
			Help: "Number of failed sink deliveries by sink name",
		},
		[]string{"sink"},
	)
)

// RaceTrials counts counter race trials by locking mode and outcome (exact, deviated)
var RaceTrials = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricefeed_race_trials_total",
		Help: "Shared counter race trials by locking mode and outcome",
	},
	[]string{"locking", "outcome"},
)

func init() {
	prometheus.MustRegister(MessagesReceived, MessagesProcessed, MessagesSkipped, ProcessLatency)
	prometheus.MustRegister(QueueDepth, ConnectionEvents, SinkErrors)
	prometheus.MustRegister(RaceTrials)
}
