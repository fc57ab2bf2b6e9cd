// Package writer batches normalized events and persists them with pgx.
//
// Each destination table gets its own bounded buffer and flush worker.
// Batches flush when they reach the configured size or age, whichever
// comes first. Failed flushes retry with backoff, then spill to disk or
// drop depending on configuration.
package writer
