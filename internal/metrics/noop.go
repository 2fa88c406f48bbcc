package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder.
// All methods are empty, providing zero overhead when metrics are disabled.
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordCodeExchange(provider string, success bool) {}
func (n *NoopMetrics) RecordTokenRefresh(provider string, success bool) {}
func (n *NoopMetrics) RecordRefreshDeduped(provider string)             {}

func (n *NoopMetrics) RecordUpstreamRequest(
	provider, resource string,
	statusCode int,
	duration time.Duration,
) {
}

func (n *NoopMetrics) RecordCacheHit(resource string)  {}
func (n *NoopMetrics) RecordCacheMiss(resource string) {}

func (n *NoopMetrics) RecordInsightsRequest(success bool, duration time.Duration) {}
