// Package telemetry exports OpenTelemetry traces over OTLP (gRPC or HTTP)
// with parent-based ratio sampling. Metrics are served separately by the
// Prometheus registry on /metrics.
package telemetry
