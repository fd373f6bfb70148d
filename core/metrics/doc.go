// Package metrics defines the observability sinks fed by the simulation.
// A Sink receives every history event; sinks may also implement
// FleetStateRecorder or SummaryRecorder. Several sinks can be combined with
// NewMultiSink and NewSink builds the combination from configuration.
package metrics
