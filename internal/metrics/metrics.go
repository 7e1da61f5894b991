// Package metrics counts archive activity for export in the Prometheus text
// format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	filesWritten *prometheus.CounterVec
	filesRead    prometheus.Counter
	bytesIn      prometheus.Counter
	bytesOut     prometheus.Counter
	corrupt      prometheus.Counter
	opErrors     *prometheus.CounterVec
}

// New returns counters registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		filesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zpack_files_written_total",
			Help: "Count of entries written to archives.",
		}, []string{"method"}),
		filesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zpack_files_read_total",
			Help: "Count of entries decompressed and verified.",
		}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zpack_uncompressed_bytes_total",
			Help: "Count of uncompressed bytes passed through codecs.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zpack_compressed_bytes_total",
			Help: "Count of compressed bytes passed through codecs.",
		}),
		corrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zpack_corrupt_entries_total",
			Help: "Count of entries that failed verification.",
		}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zpack_operation_errors_total",
			Help: "Count of failed archive operations.",
		}, []string{"op"}),
	}
	m.reg.MustRegister(
		m.filesWritten,
		m.filesRead,
		m.bytesIn,
		m.bytesOut,
		m.corrupt,
		m.opErrors,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// FileWritten records one entry added with the given method and sizes.
func (m *Metrics) FileWritten(method string, uncomp, comp uint64) {
	if m == nil {
		return
	}
	m.filesWritten.WithLabelValues(method).Inc()
	m.bytesIn.Add(float64(uncomp))
	m.bytesOut.Add(float64(comp))
}

// FileRead records one entry read back and verified.
func (m *Metrics) FileRead(uncomp, comp uint64) {
	if m == nil {
		return
	}
	m.filesRead.Inc()
	m.bytesIn.Add(float64(uncomp))
	m.bytesOut.Add(float64(comp))
}

// Corrupt records one entry that failed verification.
func (m *Metrics) Corrupt() {
	if m == nil {
		return
	}
	m.corrupt.Inc()
}

// OpFailed records a failed operation by name.
func (m *Metrics) OpFailed(op string) {
	if m == nil {
		return
	}
	m.opErrors.WithLabelValues(op).Inc()
}

// WriteTextfile writes every metric to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
