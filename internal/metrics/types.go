package metrics

// Metric name constants following Prometheus naming conventions
// Format: archiver_{component}_{metric}_{unit}

// MetricBuildInfo carries the build as labels on a constant gauge
const MetricBuildInfo = "archiver_build_info"

// Packet routing metrics
const (
	MetricPacketsTotal         = "archiver_packets_total"
	MetricStorePacketDuration  = "archiver_store_packet_duration_seconds"
	MetricFilterRejectionTotal = "archiver_filter_rejections_total"
)

// Destination file metrics
const (
	MetricFileWritesTotal        = "archiver_file_writes_total"
	MetricFileWriteErrorsTotal   = "archiver_file_write_errors_total"
	MetricFileBytesWrittenTotal  = "archiver_file_bytes_written_total"
	MetricHeaderUpdatesTotal     = "archiver_header_updates_total"
	MetricHeaderUpdateErrors     = "archiver_header_update_errors_total"
	MetricFilesCreatedTotal      = "archiver_files_created_total"
	MetricFilesClosedTotal       = "archiver_files_closed_total"
	MetricFileMoveErrorsTotal    = "archiver_file_move_errors_total"
	MetricDestinationSizeBytes   = "archiver_destination_size_bytes"
	MetricDestinationAgeSeconds  = "archiver_destination_age_seconds"
	MetricDestinationEnabled     = "archiver_destination_enabled"
	MetricRecoverySaveErrorTotal = "archiver_recovery_save_errors_total"
)

// Label name constants
const (
	LabelOutcome     = "outcome"
	LabelDestination = "destination"
	LabelReason      = "reason"
	LabelKind        = "kind"
)

// Packet outcomes
const (
	OutcomeIgnored  = "ignored"
	OutcomeFiltered = "filtered"
	OutcomePassed   = "passed"
	OutcomeDisabled = "disabled"
)

// Close reasons
const (
	ReasonSize    = "size"
	ReasonAge     = "age"
	ReasonCommand = "command"
	ReasonError   = "error"
	ReasonReload  = "reload"
)
