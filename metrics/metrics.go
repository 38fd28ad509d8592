// Package metrics holds the Prometheus collectors shared by the tools.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sweeper"

type Metrics struct {
	sweeps       prometheus.Counter
	bytes        prometheus.Counter
	sweepRate    prometheus.Gauge
	fftBinWidth  prometheus.Gauge
	samples      *prometheus.CounterVec
	published    *prometheus.CounterVec
	ringDropped  prometheus.Counter
	ringOccupied prometheus.Gauge
}

// New registers the collectors with reg, the default registry if nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed sweeps over the tuning table.",
		}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Bytes received from the device.",
		}),
		sweepRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweeps_per_second",
			Help:      "Sweep rate over the last status interval.",
		}),
		fftBinWidth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fft_bin_width_hz",
			Help:      "Width of one FFT bin.",
		}),
		samples: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_samples_total",
			Help:      "Samples handed to an exporter, by exporter and result.",
		}, []string{"exporter", "result"}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_messages_total",
			Help:      "Spectrum messages published, by result.",
		}, []string{"result"}),
		ringDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ring_dropped_total",
			Help:      "Spectrum messages dropped because the ring was full.",
		}),
		ringOccupied: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ring_occupied",
			Help:      "Spectrum messages waiting to be published.",
		}),
	}
}

func (m *Metrics) AddSweeps(n uint64) {
	if m == nil {
		return
	}
	m.sweeps.Add(float64(n))
}

func (m *Metrics) AddBytes(n uint64) {
	if m == nil {
		return
	}
	m.bytes.Add(float64(n))
}

func (m *Metrics) SetSweepRate(r float64) {
	if m == nil {
		return
	}
	m.sweepRate.Set(r)
}

func (m *Metrics) SetBinWidth(hz float64) {
	if m == nil {
		return
	}
	m.fftBinWidth.Set(hz)
}

// Exported counts one sample handled by exporter; ok is false on failure.
func (m *Metrics) Exported(exporter string, ok bool) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(exporter, result(ok)).Inc()
}

func (m *Metrics) Published(ok bool) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) RingDropped() {
	if m == nil {
		return
	}
	m.ringDropped.Inc()
}

func (m *Metrics) SetRingOccupied(n int) {
	if m == nil {
		return
	}
	m.ringOccupied.Set(float64(n))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// Handler serves the metrics gathered by g, the default gatherer if nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes g on addr under /metrics. It blocks like
// http.ListenAndServe.
func Serve(addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	glog.Infof("serving metrics on %s/metrics\n", addr)
	return http.ListenAndServe(addr, mux)
}
