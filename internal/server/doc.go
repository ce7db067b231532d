// Package server is the enseal relay.
//
// The relay accepts websocket connections at /v1/relay, pairs them by
// channel id through a mailbox.Registry and forwards opaque data frames
// between the two sides. It also serves /health and, when enabled,
// prometheus metrics at /metrics. Nothing is written to disk except logs,
// and frame bodies are never logged.
package server
