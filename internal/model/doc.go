// Package model defines shared data types used across the ingestor.
//
// Conventions:
//   - Prices: float64 probability dollars (0.0 - 1.0)
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: Gamma market IDs, CLOB condition IDs and outcome token IDs, all strings
package model
