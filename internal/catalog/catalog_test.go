package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/bademirci/prediction-markets/internal/model"
)

// fakeLister returns a scripted sequence of listings.
type fakeLister struct {
	listings [][]model.Market
	errs     []error
	calls    int
}

func (f *fakeLister) FetchActiveMarkets(ctx context.Context, max int) ([]model.Market, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.listings) {
		return nil, nil
	}
	return f.listings[i], nil
}

func mkMarket(condID, question string, tokens ...string) model.Market {
	return model.Market{
		ID:          "id-" + condID,
		ConditionID: condID,
		Question:    question,
		Category:    "Politics",
		Outcomes:    []string{"Yes", "No"},
		TokenIDs:    tokens,
		Active:      true,
	}
}

func TestCatalog_Poll_InitialAddsEverything(t *testing.T) {
	lister := &fakeLister{listings: [][]model.Market{{
		mkMarket("0xa", "question a", "a1", "a2"),
		mkMarket("0xb", "question b", "b1", "b2"),
	}}}

	c := New(Config{MaxMarkets: 100}, lister, nil)

	diff, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	if len(diff.Added) != 2 {
		t.Fatalf("len(Added) = %d, want 2", len(diff.Added))
	}
	if len(diff.Removed) != 0 || len(diff.Updated) != 0 {
		t.Errorf("Removed/Updated = %d/%d, want 0/0", len(diff.Removed), len(diff.Updated))
	}
	if c.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2", c.ActiveCount())
	}
}

func TestCatalog_Poll_DetectsRemovalAndUpdate(t *testing.T) {
	lister := &fakeLister{listings: [][]model.Market{
		{
			mkMarket("0xa", "question a", "a1", "a2"),
			mkMarket("0xb", "question b", "b1", "b2"),
		},
		{
			// 0xa gains a token set change, 0xb is gone, 0xc is new.
			mkMarket("0xa", "question a", "a1", "a3"),
			mkMarket("0xc", "question c", "c1", "c2"),
		},
	}}

	c := New(Config{MaxMarkets: 100}, lister, nil)
	if _, err := c.Poll(context.Background()); err != nil {
		t.Fatalf("first Poll() error = %v", err)
	}

	diff, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("second Poll() error = %v", err)
	}

	if len(diff.Added) != 1 || diff.Added[0].ConditionID != "0xc" {
		t.Errorf("Added = %v, want [0xc]", diff.Added)
	}
	if len(diff.Updated) != 1 || diff.Updated[0].ConditionID != "0xa" {
		t.Errorf("Updated = %v, want [0xa]", diff.Updated)
	}
	if len(diff.Removed) != 1 || diff.Removed[0].ConditionID != "0xb" {
		t.Fatalf("Removed = %v, want [0xb]", diff.Removed)
	}
	if diff.Removed[0].Active {
		t.Error("removed market still has Active = true")
	}
}

func TestCatalog_Poll_NoChangesYieldsEmptyDiff(t *testing.T) {
	listing := []model.Market{mkMarket("0xa", "question a", "a1", "a2")}
	lister := &fakeLister{listings: [][]model.Market{listing, listing}}

	c := New(Config{MaxMarkets: 100}, lister, nil)
	c.Poll(context.Background())

	diff, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !diff.Empty() {
		t.Errorf("diff not empty: %+v", diff)
	}
}

func TestCatalog_Poll_FailureRetainsSnapshot(t *testing.T) {
	lister := &fakeLister{
		listings: [][]model.Market{{mkMarket("0xa", "question a", "a1")}, nil},
		errs:     []error{nil, errors.New("gamma unreachable")},
	}

	c := New(Config{MaxMarkets: 100}, lister, nil)
	c.Poll(context.Background())

	before := c.Snapshot()

	diff, err := c.Poll(context.Background())
	if err == nil {
		t.Fatal("Poll() = nil error, want fetch error")
	}
	if !diff.Empty() {
		t.Errorf("diff not empty on failure: %+v", diff)
	}
	if c.Snapshot() != before {
		t.Error("snapshot was replaced despite fetch failure")
	}
	if c.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1 (stale but available)", c.ActiveCount())
	}
}

func TestCatalog_TokenOwner(t *testing.T) {
	lister := &fakeLister{listings: [][]model.Market{{
		mkMarket("0xa", "question a", "a1", "a2"),
	}}}

	c := New(Config{MaxMarkets: 100}, lister, nil)
	c.Poll(context.Background())

	m, ok := c.TokenOwner("a2")
	if !ok {
		t.Fatal("TokenOwner(a2) not found")
	}
	if m.ConditionID != "0xa" {
		t.Errorf("ConditionID = %q, want 0xa", m.ConditionID)
	}

	if _, ok := c.TokenOwner("unknown"); ok {
		t.Error("TokenOwner(unknown) = true, want false")
	}
}

func TestCatalog_CategoryFilter(t *testing.T) {
	sports := mkMarket("0xs", "Lakers vs Celtics", "s1", "s2")
	sports.Category = ""
	politics := mkMarket("0xp", "question p", "p1", "p2")

	lister := &fakeLister{listings: [][]model.Market{{sports, politics}}}

	c := New(Config{MaxMarkets: 100, Category: "Sports"}, lister, nil)
	diff, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	if len(diff.Added) != 1 || diff.Added[0].ConditionID != "0xs" {
		t.Fatalf("Added = %v, want only the sports market", diff.Added)
	}
	if _, ok := c.TokenOwner("p1"); ok {
		t.Error("filtered-out market token still resolvable")
	}
}

func TestComputeCategory(t *testing.T) {
	tests := []struct {
		name     string
		question string
		category string
		want     string
	}{
		{"api category kept", "Will X happen?", "Politics", "Politics"},
		{"sports api category", "anything", "Sports", "Sports"},
		{"keyword match", "Arsenal vs Chelsea winner?", "", "Sports"},
		{"keyword beats api category", "Who wins the Premier League?", "Crypto", "Sports"},
		{"fallback", "Will X happen?", "", "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model.Market{Question: tt.question, Category: tt.category}
			if got := computeCategory(m); got != tt.want {
				t.Errorf("computeCategory() = %q, want %q", got, tt.want)
			}
		})
	}
}
