package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bademirci/prediction-markets/internal/model"
)

// Lister fetches the current active-market listing from the metadata source.
type Lister interface {
	FetchActiveMarkets(ctx context.Context, max int) ([]model.Market, error)
}

// Config holds catalog settings.
type Config struct {
	Category   string // empty = all categories
	MaxMarkets int
}

// Diff describes changes between two consecutive snapshots.
type Diff struct {
	Added   []model.Market // newly active markets
	Removed []model.Market // markets absent from the latest poll (deactivated)
	Updated []model.Market // markets whose metadata changed
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

// Snapshot is an immutable view of the known markets. Never mutated after
// publication; a new snapshot replaces it wholesale.
type Snapshot struct {
	Markets   map[string]model.Market // by condition ID
	Tokens    map[string]string       // token ID → condition ID
	FetchedAt time.Time
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Markets: map[string]model.Market{},
		Tokens:  map[string]string{},
	}
}

// Catalog polls the metadata source and tracks the active market set.
type Catalog struct {
	cfg    Config
	lister Lister
	logger *slog.Logger

	snap atomic.Pointer[Snapshot]
}

// New creates a Catalog with an empty initial snapshot.
func New(cfg Config, lister Lister, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		cfg:    cfg,
		lister: lister,
		logger: logger,
	}
	c.snap.Store(emptySnapshot())
	return c
}

// Snapshot returns the current snapshot. Callers must not mutate it.
func (c *Catalog) Snapshot() *Snapshot {
	return c.snap.Load()
}

// TokenOwner resolves a token ID to its market in the current snapshot.
func (c *Catalog) TokenOwner(tokenID string) (model.Market, bool) {
	snap := c.snap.Load()
	condID, ok := snap.Tokens[tokenID]
	if !ok {
		return model.Market{}, false
	}
	m, ok := snap.Markets[condID]
	return m, ok
}

// ActiveCount returns the number of markets in the current snapshot.
func (c *Catalog) ActiveCount() int {
	return len(c.snap.Load().Markets)
}

// Poll fetches the full active listing, diffs it against the previous
// snapshot by condition ID, and swaps in the new snapshot. On fetch
// failure the prior snapshot is retained and a zero Diff is returned.
func (c *Catalog) Poll(ctx context.Context) (Diff, error) {
	start := time.Now()

	fetched, err := c.lister.FetchActiveMarkets(ctx, c.cfg.MaxMarkets)
	if err != nil {
		return Diff{}, fmt.Errorf("fetch markets: %w", err)
	}

	next := &Snapshot{
		Markets:   make(map[string]model.Market, len(fetched)),
		Tokens:    make(map[string]string),
		FetchedAt: time.Now(),
	}

	for _, m := range fetched {
		m.Computed = computeCategory(m)
		if c.cfg.Category != "" && m.Computed != c.cfg.Category {
			continue
		}
		next.Markets[m.ConditionID] = m
		for _, tok := range m.TokenIDs {
			next.Tokens[tok] = m.ConditionID
		}
	}

	prev := c.snap.Load()
	diff := diffSnapshots(prev, next)
	c.snap.Store(next)

	if !diff.Empty() {
		c.logger.Info("catalog poll found changes",
			"added", len(diff.Added),
			"removed", len(diff.Removed),
			"updated", len(diff.Updated),
			"active_markets", len(next.Markets),
			"duration", time.Since(start),
		)
	} else {
		c.logger.Debug("catalog poll complete",
			"active_markets", len(next.Markets),
			"duration", time.Since(start),
		)
	}

	return diff, nil
}

// diffSnapshots computes Added/Removed/Updated between two snapshots.
func diffSnapshots(prev, next *Snapshot) Diff {
	var d Diff

	for condID, m := range next.Markets {
		old, ok := prev.Markets[condID]
		if !ok {
			d.Added = append(d.Added, m)
			continue
		}
		if marketChanged(old, m) {
			d.Updated = append(d.Updated, m)
		}
	}

	for condID, old := range prev.Markets {
		if _, ok := next.Markets[condID]; !ok {
			// Deactivated, never hard-deleted: report the last known
			// state with the active flag cleared.
			old.Active = false
			old.UpdatedAt = next.FetchedAt.UnixMicro()
			d.Removed = append(d.Removed, old)
		}
	}

	return d
}

func marketChanged(old, new model.Market) bool {
	return old.Question != new.Question ||
		old.Computed != new.Computed ||
		old.Active != new.Active ||
		old.Closed != new.Closed ||
		!old.SameTokens(new)
}
