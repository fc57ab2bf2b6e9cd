// Package stream maintains the CLOB WebSocket market-channel connection.
//
// Client wraps a single gorilla/websocket connection; Stream owns the
// connection state machine (Disconnected → Connecting → Subscribing →
// Streaming, with ReconnectPending on any transport error), the desired
// subscription set, and normalization of raw feed messages into typed
// domain events.
package stream
