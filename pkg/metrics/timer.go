package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures the elapsed time of an operation for histogram
// observation. The zero value is not usable; create one with NewTimer.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on the given histogram.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time on the histogram vector
// entry selected by the label values.
func (t *Timer) ObserveDurationVec(v *prometheus.HistogramVec, labels ...string) {
	v.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
