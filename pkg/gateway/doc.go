// Package gateway exposes the memory subsystem over WebSocket and HTTP
// JSON-RPC. Clients authenticate with an HMAC challenge-response over a
// shared secret; method parameters are validated against JSON schemas
// before they reach the memory manager.
package gateway
