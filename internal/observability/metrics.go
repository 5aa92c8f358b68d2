package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Source metrics
	MessagesConsumed   *prometheus.CounterVec
	MessagesRejected   *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	PartitionsAssigned *prometheus.GaugeVec
	SourceErrors       *prometheus.CounterVec

	// Producer metrics
	EventsProduced *prometheus.CounterVec
	EventsFailed   *prometheus.CounterVec

	// Stream metrics
	RowsEmitted    *prometheus.CounterVec
	BytesEmitted   *prometheus.CounterVec
	ActiveStreams  *prometheus.GaugeVec
	StreamDuration *prometheus.HistogramVec
	StreamErrors   *prometheus.CounterVec

	// Export metrics
	ExportsWritten *prometheus.CounterVec
	ExportDuration *prometheus.HistogramVec
	ExportSize     *prometheus.HistogramVec
	StorageErrors  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_messages_consumed_total",
				Help: "Total number of messages handed downstream by a source",
			},
			[]string{"source", "partition"},
		),
		MessagesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_messages_rejected_total",
				Help: "Total number of messages skipped because they could not be decoded or validated",
			},
			[]string{"source", "reason"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		SourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_errors_total",
				Help: "Total number of source transport errors",
			},
			[]string{"source"},
		),

		EventsProduced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "producer_events_produced_total",
				Help: "Total number of events produced to Kafka",
			},
			[]string{"topic", "type"},
		),
		EventsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "producer_events_failed_total",
				Help: "Total number of failed event productions",
			},
			[]string{"topic", "type"},
		),

		RowsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csv_rows_emitted_total",
				Help: "Total number of CSV data rows emitted",
			},
			[]string{"consumer"},
		),
		BytesEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csv_bytes_emitted_total",
				Help: "Total number of CSV bytes emitted, header included",
			},
			[]string{"consumer"},
		),
		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "csv_active_streams",
				Help: "Number of row streams currently being consumed",
			},
			[]string{"consumer"},
		),
		StreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "csv_stream_duration_seconds",
				Help:    "Duration of a row stream from first pull to termination",
				Buckets: []float64{0.01, 0.1, 0.5, 1.0, 5.0, 30.0, 60.0, 300.0, 900.0},
			},
			[]string{"consumer", "status"},
		),
		StreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csv_stream_errors_total",
				Help: "Total number of row stream failures",
			},
			[]string{"consumer", "kind"},
		),

		ExportsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exports_written_total",
				Help: "Total number of CSV objects written to storage",
			},
			[]string{"backend", "status"},
		),
		ExportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "export_duration_seconds",
				Help:    "Duration of export operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		ExportSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "export_size_bytes",
				Help:    "Size of CSV objects written to storage",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"backend"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),
	}
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(source string, partition int32) {
	m.MessagesConsumed.WithLabelValues(source, fmt.Sprintf("%d", partition)).Inc()
}

// IncMessagesRejected increments the rejected messages counter.
func (m *Metrics) IncMessagesRejected(source, reason string) {
	m.MessagesRejected.WithLabelValues(source, reason).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncSourceErrors increments source errors counter.
func (m *Metrics) IncSourceErrors(source string) {
	m.SourceErrors.WithLabelValues(source).Inc()
}

// IncEventsProduced increments the events produced counter.
func (m *Metrics) IncEventsProduced(topic, eventType string) {
	m.EventsProduced.WithLabelValues(topic, eventType).Inc()
}

// IncEventsFailed increments the events failed counter.
func (m *Metrics) IncEventsFailed(topic, eventType string) {
	m.EventsFailed.WithLabelValues(topic, eventType).Inc()
}

// AddRows adds emitted rows and bytes for consumer.
func (m *Metrics) AddRows(consumer string, rows, bytes int64) {
	m.RowsEmitted.WithLabelValues(consumer).Add(float64(rows))
	m.BytesEmitted.WithLabelValues(consumer).Add(float64(bytes))
}

// StreamStarted increments the active streams gauge.
func (m *Metrics) StreamStarted(consumer string) {
	m.ActiveStreams.WithLabelValues(consumer).Inc()
}

// StreamFinished decrements the active streams gauge and records the duration.
func (m *Metrics) StreamFinished(consumer, status string, duration float64) {
	m.ActiveStreams.WithLabelValues(consumer).Dec()
	m.StreamDuration.WithLabelValues(consumer, status).Observe(duration)
}

// IncStreamErrors increments stream errors counter.
func (m *Metrics) IncStreamErrors(consumer, kind string) {
	m.StreamErrors.WithLabelValues(consumer, kind).Inc()
}

// IncExportsWritten increments exports written counter.
func (m *Metrics) IncExportsWritten(backend, status string) {
	m.ExportsWritten.WithLabelValues(backend, status).Inc()
}

// ObserveExportDuration observes export duration.
func (m *Metrics) ObserveExportDuration(backend string, duration float64) {
	m.ExportDuration.WithLabelValues(backend).Observe(duration)
}

// ObserveExportSize observes export size.
func (m *Metrics) ObserveExportSize(backend string, size float64) {
	m.ExportSize.WithLabelValues(backend).Observe(size)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}
