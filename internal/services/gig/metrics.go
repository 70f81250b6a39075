package gig

// MetricsCollector records gig lifecycle events for monitoring.
type MetricsCollector interface {
	RecordGigEvent(event string)
	RecordError(operation, errorType string)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordGigEvent(event string)             {}
func (n *NoopMetricsCollector) RecordError(operation, errorType string) {}
