// Package ingest wires the catalog, stream and writer into one pipeline.
//
// The orchestrator polls the market catalog, keeps the stream's
// subscription set aligned with the active markets, enriches incoming
// events with catalog identity, and hands them to the batch writer.
package ingest
