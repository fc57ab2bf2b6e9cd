// Package api provides a read-only client for the Polymarket Gamma API,
// the metadata source for the market catalog.
package api
