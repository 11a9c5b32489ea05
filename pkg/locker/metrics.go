package locker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors recorded by Lock. A nil *Metrics
// records nothing.
type Metrics struct {
	// Acquisitions counts acquisition outcomes by lock name and result kind.
	Acquisitions *prometheus.CounterVec
	// Releases counts releases by lock name and result kind.
	Releases *prometheus.CounterVec
	// WaitSeconds observes time spent acquiring, successful or not.
	WaitSeconds *prometheus.HistogramVec
	// HeldSeconds observes how long scoped critical sections held the lock.
	HeldSeconds *prometheus.HistogramVec
}

// NewMetrics creates unregistered lock collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lock_acquisitions_total",
			Help: "Total number of lock acquisition calls by outcome",
		}, []string{"name", "result"}),
		Releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lock_releases_total",
			Help: "Total number of lock releases by outcome",
		}, []string{"name", "result"}),
		WaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lock_wait_seconds",
			Help:    "Time spent acquiring a lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"name"}),
		HeldSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lock_held_seconds",
			Help:    "Time a scoped critical section held its lock",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"name"}),
	}
}

// Register registers the collectors on reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Acquisitions, m.Releases, m.WaitSeconds, m.HeldSeconds} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) acquired(name string, wait time.Duration, err error) {
	if m == nil {
		return
	}
	m.Acquisitions.WithLabelValues(name, resultLabel(err)).Inc()
	m.WaitSeconds.WithLabelValues(name).Observe(wait.Seconds())
}

func (m *Metrics) released(name string, err error) {
	if m == nil {
		return
	}
	m.Releases.WithLabelValues(name, resultLabel(err)).Inc()
}

func (m *Metrics) held(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.HeldSeconds.WithLabelValues(name).Observe(d.Seconds())
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}
