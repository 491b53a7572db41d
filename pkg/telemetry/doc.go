// Package telemetry wires OpenTelemetry exporters and meters for huntgen.
//
// It centralises trace provider setup and records per-stage counters and
// latency so a generation run can be inspected with the same tooling as any
// other service.
package telemetry
