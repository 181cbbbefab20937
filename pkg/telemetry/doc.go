// Package telemetry provides observability for workflow runs:
// structured logging with zerolog, Prometheus metrics on stage and
// heal activity, and OpenTelemetry tracing with stdout or OTLP gRPC
// export.
package telemetry
