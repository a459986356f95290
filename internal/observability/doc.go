// Package observability builds the process-wide structured logger.
//
// Request-scoped fields (request_id, status, duration) are attached by the
// HTTP middleware; this package only decides level, encoding and sinks.
package observability
