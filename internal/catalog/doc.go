// Package catalog maintains the known set of active markets.
//
// A single immutable Snapshot is swapped atomically on each successful
// poll of the Gamma API; readers always see a complete, consistent view.
// Poll returns the diff against the previous snapshot so the orchestrator
// can reconcile stream subscriptions.
package catalog
