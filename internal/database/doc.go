// Package database manages the TimescaleDB connection pool and the
// ingestion schema (markets dimension, trade facts, order-book level facts).
package database
