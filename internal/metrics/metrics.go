package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printdeck_fulfillment_messages_total",
			Help: "Total number of fulfillment messages processed, by queue and outcome.",
		},
		[]string{"queue", "outcome"}, // outcome: ack, retry, dead
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printdeck_fulfillment_retries_total",
			Help: "Total number of message retries by reason.",
		},
		[]string{"reason"}, // e.g. kv_error, provider_5xx, handler_panic
	)

	DLQTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "printdeck_fulfillment_dlq_total",
			Help: "Total number of messages given up on after exhausting retries.",
		},
	)

	TokensGrantedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printdeck_tokens_granted_total",
			Help: "Total number of design tokens credited, by bundle.",
		},
		[]string{"bundle"},
	)

	PrintOrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printdeck_print_orders_total",
			Help: "Total number of print order submissions, by final status.",
		},
		[]string{"status"}, // confirmed, failed
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "printdeck_queue_depth",
			Help: "Current depth of the fulfillment topics as reported by nsqd.",
		},
		[]string{"topic", "channel"},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(MessagesTotal, RetriesTotal, DLQTotal, TokensGrantedTotal, PrintOrdersTotal, QueueDepth)
}

// RecordMessage counts one processed message with its dispatch outcome.
func RecordMessage(queue, outcome string) {
	MessagesTotal.WithLabelValues(queue, outcome).Inc()
}

// RecordRetry counts one scheduled redelivery.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordDLQ counts one dead-lettered message.
func RecordDLQ() {
	DLQTotal.Inc()
}

// RecordTokensGranted counts tokens credited for a bundle.
func RecordTokensGranted(bundle string, tokens int) {
	TokensGrantedTotal.WithLabelValues(bundle).Add(float64(tokens))
}

// RecordPrintOrder counts one print order submission outcome.
func RecordPrintOrder(status string) {
	PrintOrdersTotal.WithLabelValues(status).Inc()
}

// UpdateQueueDepth sets the observed nsqd depth for a topic/channel pair.
func UpdateQueueDepth(topic, channel string, depth float64) {
	QueueDepth.WithLabelValues(topic, channel).Set(depth)
}
