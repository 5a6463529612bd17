package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ArchiveMetrics tracks packet routing and destination file activity.
// All methods are safe on a nil receiver.
type ArchiveMetrics struct {
	packetsTotal        *prometheus.CounterVec
	storePacketDuration *prometheus.HistogramVec
	filterRejections    *prometheus.CounterVec
	fileWrites          *prometheus.CounterVec
	fileWriteErrors     *prometheus.CounterVec
	fileBytesWritten    *prometheus.CounterVec
	headerUpdates       *prometheus.CounterVec
	headerUpdateErrors  *prometheus.CounterVec
	filesCreated        *prometheus.CounterVec
	filesClosed         *prometheus.CounterVec
	fileMoveErrors      *prometheus.CounterVec
	destinationSize     *prometheus.GaugeVec
	destinationAge      *prometheus.GaugeVec
	destinationEnabled  *prometheus.GaugeVec
	recoverySaveErrors  *prometheus.CounterVec
}

// NewArchiveMetrics registers archive metrics with the collector
func NewArchiveMetrics(collector *Collector) *ArchiveMetrics {
	dest := []string{LabelDestination}
	return &ArchiveMetrics{
		packetsTotal: collector.RegisterCounter(
			MetricPacketsTotal,
			"Total packets received by routing outcome",
			[]string{LabelOutcome},
		),
		storePacketDuration: collector.RegisterHistogram(
			MetricStorePacketDuration,
			"Duration of StorePacket calls in seconds",
			[]string{LabelOutcome},
			[]float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		),
		filterRejections: collector.RegisterCounter(
			MetricFilterRejectionTotal,
			"Filter evaluations that rejected a packet, by filter kind",
			[]string{LabelKind},
		),
		fileWrites: collector.RegisterCounter(
			MetricFileWritesTotal,
			"Successful destination file writes",
			dest,
		),
		fileWriteErrors: collector.RegisterCounter(
			MetricFileWriteErrorsTotal,
			"Destination file create or write failures",
			dest,
		),
		fileBytesWritten: collector.RegisterCounter(
			MetricFileBytesWrittenTotal,
			"Bytes written to destination files",
			dest,
		),
		headerUpdates: collector.RegisterCounter(
			MetricHeaderUpdatesTotal,
			"Successful close-time header updates",
			dest,
		),
		headerUpdateErrors: collector.RegisterCounter(
			MetricHeaderUpdateErrors,
			"Failed close-time header updates",
			dest,
		),
		filesCreated: collector.RegisterCounter(
			MetricFilesCreatedTotal,
			"Destination files created",
			dest,
		),
		filesClosed: collector.RegisterCounter(
			MetricFilesClosedTotal,
			"Destination files closed by reason",
			[]string{LabelDestination, LabelReason},
		),
		fileMoveErrors: collector.RegisterCounter(
			MetricFileMoveErrorsTotal,
			"Failed moves of closed files",
			dest,
		),
		destinationSize: collector.RegisterGauge(
			MetricDestinationSizeBytes,
			"Size of the open destination file in bytes",
			dest,
		),
		destinationAge: collector.RegisterGauge(
			MetricDestinationAgeSeconds,
			"Age of the open destination file in seconds",
			dest,
		),
		destinationEnabled: collector.RegisterGauge(
			MetricDestinationEnabled,
			"1 when the destination is enabled",
			dest,
		),
		recoverySaveErrors: collector.RegisterCounter(
			MetricRecoverySaveErrorTotal,
			"Failed sequence counter saves",
			nil,
		),
	}
}

// RecordPacket records the routing outcome of one packet
func (m *ArchiveMetrics) RecordPacket(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.packetsTotal.WithLabelValues(outcome).Inc()
	m.storePacketDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordRejection records one filter rejection
func (m *ArchiveMetrics) RecordRejection(kind string) {
	if m == nil {
		return
	}
	m.filterRejections.WithLabelValues(kind).Inc()
}

// RecordWrite records a successful write of n bytes
func (m *ArchiveMetrics) RecordWrite(dest int, n int) {
	if m == nil {
		return
	}
	d := formatDest(dest)
	m.fileWrites.WithLabelValues(d).Inc()
	m.fileBytesWritten.WithLabelValues(d).Add(float64(n))
}

// RecordWriteError records a failed create or write
func (m *ArchiveMetrics) RecordWriteError(dest int) {
	if m == nil {
		return
	}
	m.fileWriteErrors.WithLabelValues(formatDest(dest)).Inc()
}

// RecordHeaderUpdate records the outcome of a close-time header patch
func (m *ArchiveMetrics) RecordHeaderUpdate(dest int, ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.headerUpdates.WithLabelValues(formatDest(dest)).Inc()
		return
	}
	m.headerUpdateErrors.WithLabelValues(formatDest(dest)).Inc()
}

// RecordCreate records a new destination file
func (m *ArchiveMetrics) RecordCreate(dest int) {
	if m == nil {
		return
	}
	m.filesCreated.WithLabelValues(formatDest(dest)).Inc()
}

// RecordClose records a closed destination file
func (m *ArchiveMetrics) RecordClose(dest int, reason string) {
	if m == nil {
		return
	}
	d := formatDest(dest)
	m.filesClosed.WithLabelValues(d, reason).Inc()
	m.destinationSize.WithLabelValues(d).Set(0)
	m.destinationAge.WithLabelValues(d).Set(0)
}

// RecordMoveError records a failed relocation of a closed file
func (m *ArchiveMetrics) RecordMoveError(dest int) {
	if m == nil {
		return
	}
	m.fileMoveErrors.WithLabelValues(formatDest(dest)).Inc()
}

// UpdateDestination updates the size and age gauges of an open file
func (m *ArchiveMetrics) UpdateDestination(dest int, size int64, age uint32) {
	if m == nil {
		return
	}
	d := formatDest(dest)
	m.destinationSize.WithLabelValues(d).Set(float64(size))
	m.destinationAge.WithLabelValues(d).Set(float64(age))
}

// SetEnabled updates the enable gauge of a destination
func (m *ArchiveMetrics) SetEnabled(dest int, enabled bool) {
	if m == nil {
		return
	}
	v := 0.0
	if enabled {
		v = 1
	}
	m.destinationEnabled.WithLabelValues(formatDest(dest)).Set(v)
}

// RecordRecoverySaveError records a failed sequence save
func (m *ArchiveMetrics) RecordRecoverySaveError() {
	if m == nil {
		return
	}
	m.recoverySaveErrors.WithLabelValues().Inc()
}

func formatDest(dest int) string {
	return strconv.Itoa(dest)
}
