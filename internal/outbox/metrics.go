package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mycalendar",
		Subsystem: "reminder_outbox",
		Name:      "delivered_total",
		Help:      "Reminder events delivered to Kafka.",
	})
	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mycalendar",
		Subsystem: "reminder_outbox",
		Name:      "failed_total",
		Help:      "Reminder delivery attempts that failed.",
	})
	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mycalendar",
		Subsystem: "reminder_outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent processing one outbox batch.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration)
}
