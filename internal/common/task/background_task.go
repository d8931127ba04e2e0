package task

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type task struct {
	function   func()
	interval   time.Duration
	metricName string
	stop       chan struct{}
}

// BackgroundTaskManager runs registered functions on a fixed interval until
// StopAll is called. It is not threadsafe; register tasks from a single
// goroutine during startup.
type BackgroundTaskManager struct {
	tasks         []*task
	metricsPrefix string
	wg            *sync.WaitGroup
}

func NewBackgroundTaskManager(metricsPrefix string) *BackgroundTaskManager {
	return &BackgroundTaskManager{
		tasks:         []*task{},
		metricsPrefix: metricsPrefix,
		wg:            &sync.WaitGroup{},
	}
}

// Register starts backgroundTask immediately and then re-runs it every
// interval. Each run's duration is observed in a histogram named after
// metricName.
func (m *BackgroundTaskManager) Register(backgroundTask func(), interval time.Duration, metricName string) {
	t := &task{
		function:   backgroundTask,
		interval:   interval,
		metricName: metricName,
		stop:       make(chan struct{}),
	}
	m.runTask(t)
	m.tasks = append(m.tasks, t)
}

// StopAll signals every task to stop and waits up to timeout for the ones
// mid-run to finish. Returns true if the wait timed out.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	for _, t := range m.tasks {
		close(t.stop)
	}

	c := make(chan struct{})
	go func() {
		defer close(c)
		m.wg.Wait()
	}()
	select {
	case <-c:
		return false
	case <-time.After(timeout):
		return true
	}
}

func (m *BackgroundTaskManager) runTask(t *task) {
	durationHistogram := promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    m.metricsPrefix + t.metricName + "_latency_seconds",
			Help:    "Background loop " + t.metricName + " latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		})

	runOnce := func() {
		start := time.Now()
		t.function()
		durationHistogram.Observe(time.Since(start).Seconds())
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		runOnce()
		for {
			select {
			case <-time.After(t.interval):
			case <-t.stop:
				return
			}
			runOnce()
		}
	}()
}
