// Package server holds the process-wide state shared by the MCP tools and
// the HTTP endpoints around them.
//
// ServerContext owns the Authorizer and builds the mailbox Service lazily
// once authorization has completed. Metrics and audit logging are attached
// to it when instrumentation is enabled.
//
// MetricsServer exposes Prometheus metrics on a dedicated port, and
// HealthChecker provides /healthz, /readyz and /healthz/detailed for the
// streamable HTTP transport.
package server
