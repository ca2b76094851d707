package wallet

import "time"

// Metrics receives wallet operation telemetry.
type Metrics interface {
	ObserveOperation(op, result string, duration time.Duration)
	RecordVersionConflict(op string)
	RecordManualIntervention()
}

// NoopMetrics discards all telemetry.
type NoopMetrics struct{}

func (NoopMetrics) ObserveOperation(string, string, time.Duration) {}
func (NoopMetrics) RecordVersionConflict(string)                   {}
func (NoopMetrics) RecordManualIntervention()                      {}
