// Package timeouts defines shared timeout constants used across the server.
// Centralizing these values prevents drift between surfaces and makes the
// durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Store caps a single persistence operation issued outside a request,
// such as a deferred task completion.
const Store = 5 * time.Second
