// Package instrumentation provides the OpenTelemetry metrics, traces and the
// tool audit log of the mailreader MCP server.
//
// # Metrics
//
// Gmail API:
//   - google_api_operations_total{service,operation,status}
//   - google_api_operation_duration_seconds{service,operation,status}
//   - mailbox_messages_fetched_total{result}: "fetched" or "absent"
//
// OAuth:
//   - oauth_auth_total{result}: authorization code exchanges
//   - oauth_token_refresh_total{result}: access token refreshes
//
// MCP tools:
//   - mcp_tool_invocations_total{tool,status}
//   - mcp_tool_duration_seconds{tool,status}
//
// Metrics are exported through Prometheus (the default, served by the metrics
// server in internal/server), OTLP over HTTP, or stdout.
//
// # Tracing
//
// Tool calls open a server span "tool.<name>" and every Gmail API call opens a
// client span "google.gmail.<operation>". Tracing is off unless
// TRACING_EXPORTER is "otlp" or "stdout".
//
// # Configuration
//
// DefaultConfig reads INSTRUMENTATION_ENABLED, METRICS_EXPORTER,
// TRACING_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE,
// OTEL_TRACES_SAMPLER_ARG, AUDIT_LOGGING_ENABLED and AUDIT_LOGGING_INCLUDE_PII.
//
// A nil *Metrics is a valid recorder, so components accept one unconditionally.
package instrumentation
