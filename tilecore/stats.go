package tilecore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats mirrors the subset of the Java Stats sink the renderer depends on:
// per-feature processing counts, per-zoom emission counts, and tagged data
// errors from the geometry repair pipeline.
type Stats interface {
	ProcessedElement(kind, layer string)
	EmittedFeatures(z int, layer string, count int)
	DataError(tag string)
}

// prometheusStats is the production Stats implementation, structured the
// way pmtiles/server_metrics.go groups counters per concern: one CounterVec
// per stats method, labeled by the dimensions callers actually vary.
type prometheusStats struct {
	processed *prometheus.CounterVec
	emitted   *prometheus.CounterVec
	dataError *prometheus.CounterVec
}

// NewPrometheusStats registers the render stats counters on reg and returns
// a Stats backed by them. Pass prometheus.NewRegistry() in tests to avoid
// colliding with the global default registry.
func NewPrometheusStats(reg *prometheus.Registry) Stats {
	s := &prometheusStats{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tilecore",
			Name:      "processed_elements_total",
		}, []string{"kind", "layer"}),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tilecore",
			Name:      "emitted_features_total",
		}, []string{"zoom", "layer"}),
		dataError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tilecore",
			Name:      "data_errors_total",
		}, []string{"tag"}),
	}
	reg.MustRegister(s.processed, s.emitted, s.dataError)
	return s
}

func (s *prometheusStats) ProcessedElement(kind, layer string) {
	s.processed.WithLabelValues(kind, layer).Inc()
}

func (s *prometheusStats) EmittedFeatures(z int, layer string, count int) {
	s.emitted.WithLabelValues(zoomLabel(z), layer).Add(float64(count))
}

func (s *prometheusStats) DataError(tag string) {
	s.dataError.WithLabelValues(tag).Inc()
}

func zoomLabel(z int) string {
	const digits = "0123456789"
	if z < 10 {
		return digits[z : z+1]
	}
	buf := [3]byte{}
	i := len(buf)
	for z > 0 {
		i--
		buf[i] = digits[z%10]
		z /= 10
	}
	return string(buf[i:])
}

// NopStats discards everything; tests that don't care about metrics use it
// instead of wiring a registry, mirroring the throwaway stats doubles used
// throughout the teacher package's own tests.
type NopStats struct{}

func (NopStats) ProcessedElement(string, string)  {}
func (NopStats) EmittedFeatures(int, string, int) {}
func (NopStats) DataError(string)                 {}
