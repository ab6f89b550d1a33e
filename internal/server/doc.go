// Package server hosts the Fiber HTTP service and its middleware chain:
// panic recovery, request IDs, CORS, response compression and the optional
// access log. The CDN pipeline is mounted behind a narrow Handler interface
// so tests can inject fakes, and diagnostics under /-/ are registered by the
// routes subpackage.
package server
