// Package server exposes a read-only HTTP status surface over the audit
// trail.
//
// This package provides:
//   - Health endpoint for monitoring
//   - Recent push attempts, globally and per branch
//   - Aggregated outcome counters
//   - Per-IP rate limiting and structured request logging
//
// The server never mutates the audit trail; every endpoint is a read.
package server
