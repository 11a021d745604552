package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anicoll/homgar-integration/internal/pkg/homgar"
)

const namespace = "homgar"

type Metrics struct {
	polls      *prometheus.CounterVec
	skipped    prometheus.Counter
	duration   prometheus.Histogram
	available  prometheus.Gauge
	subDevices prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Refreshes against the vendor API by result.",
		}, []string{"result"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_skipped_total",
			Help:      "Poll calls answered without a refresh.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a full refresh.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "available",
			Help:      "1 when the last poll or login succeeded.",
		}),
		subDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sub_devices",
			Help:      "Sub-devices in the published topology.",
		}),
	}
	reg.MustRegister(m.polls, m.skipped, m.duration, m.available, m.subDevices)
	return m
}

func (m *Metrics) PollSkipped() {
	m.skipped.Inc()
}

func (m *Metrics) PollFinished(d time.Duration, err error) {
	m.duration.Observe(d.Seconds())
	m.polls.WithLabelValues(Result(err)).Inc()
}

func (m *Metrics) SetAvailable(available bool) {
	if available {
		m.available.Set(1)
		return
	}
	m.available.Set(0)
}

func (m *Metrics) SetSubDevices(n int) {
	m.subDevices.Set(float64(n))
}

// Result is the metric label for a refresh outcome.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, homgar.ErrAuth):
		return "auth"
	case errors.Is(err, homgar.ErrNotFound):
		return "not_found"
	case errors.Is(err, homgar.ErrNetwork):
		return "network"
	case errors.Is(err, homgar.ErrAPI):
		return "api"
	default:
		return "other"
	}
}
