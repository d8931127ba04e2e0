package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
	"github.com/vidfetch/vidfetch/internal/vidfetch/eventbus"
)

const MetricPrefix = "vidfetch_"

// QueueSource is what the collector samples on every scrape.
type QueueSource interface {
	Snapshot() []domain.JobInfo
	Capacity() int
}

type SessionSource interface {
	SessionCount() int
}

type SubscriptionSource interface {
	SubscriptionCount() int
}

func ExposeQueueMetrics(queue QueueSource, sessions SessionSource, subscriptions SubscriptionSource) *QueueInfoCollector {
	collector := &QueueInfoCollector{
		queue:         queue,
		sessions:      sessions,
		subscriptions: subscriptions,
	}
	prometheus.MustRegister(collector)
	return collector
}

// QueueInfoCollector reads the live queue on scrape instead of keeping
// counters in sync with it.
type QueueInfoCollector struct {
	queue         QueueSource
	sessions      SessionSource
	subscriptions SubscriptionSource
}

var jobsDesc = prometheus.NewDesc(
	MetricPrefix+"jobs",
	"Number of jobs by state",
	[]string{"state"},
	nil,
)

var capacityDesc = prometheus.NewDesc(
	MetricPrefix+"capacity",
	"Number of jobs allowed to run at once",
	nil,
	nil,
)

var sessionsDesc = prometheus.NewDesc(
	MetricPrefix+"websocket_sessions",
	"Number of connected websocket sessions",
	nil,
	nil,
)

var subscriptionsDesc = prometheus.NewDesc(
	MetricPrefix+"subscriptions",
	"Number of live observer subscriptions",
	nil,
	nil,
)

func (c *QueueInfoCollector) Describe(desc chan<- *prometheus.Desc) {
	desc <- jobsDesc
	desc <- capacityDesc
	desc <- sessionsDesc
	desc <- subscriptionsDesc
}

func (c *QueueInfoCollector) Collect(metrics chan<- prometheus.Metric) {
	counts := map[domain.JobState]int{
		domain.JobQueued:    0,
		domain.JobRunning:   0,
		domain.JobDone:      0,
		domain.JobFailed:    0,
		domain.JobCancelled: 0,
	}
	for _, job := range c.queue.Snapshot() {
		counts[job.State]++
	}
	for state, count := range counts {
		metrics <- prometheus.MustNewConstMetric(
			jobsDesc, prometheus.GaugeValue, float64(count), string(state))
	}
	metrics <- prometheus.MustNewConstMetric(
		capacityDesc, prometheus.GaugeValue, float64(c.queue.Capacity()))
	metrics <- prometheus.MustNewConstMetric(
		sessionsDesc, prometheus.GaugeValue, float64(c.sessions.SessionCount()))
	metrics <- prometheus.MustNewConstMetric(
		subscriptionsDesc, prometheus.GaugeValue, float64(c.subscriptions.SubscriptionCount()))
}

var jobRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    MetricPrefix + "job_run_duration_seconds",
	Help:    "Time a job held an execution slot, by outcome",
	Buckets: prometheus.ExponentialBuckets(1, 2, 14),
}, []string{"outcome"})

// ObserveJobRun records how long a job ran before reaching outcome.
func ObserveJobRun(outcome domain.JobState, seconds float64) {
	jobRunDuration.WithLabelValues(string(outcome)).Observe(seconds)
}

// CountingPublisher wraps an event publisher and counts events by kind.
type CountingPublisher struct {
	next    eventbus.Publisher
	counter *prometheus.CounterVec
}

func NewCountingPublisher(next eventbus.Publisher) *CountingPublisher {
	counter := promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricPrefix + "events_published_total",
		Help: "Lifecycle events published, by kind",
	}, []string{"kind"})
	return &CountingPublisher{next: next, counter: counter}
}

func (p *CountingPublisher) Publish(event domain.Event) {
	p.counter.WithLabelValues(string(event.Kind)).Inc()
	p.next.Publish(event)
}
