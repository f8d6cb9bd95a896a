package monaco

import "testing"

func TestSeed_AggregatesAndSortsDescending(t *testing.T) {
	e := NewOrderBookEngine()
	e.Seed(42, "ah", []Price{
		{Side: PriceSideDemand, OutcomeID: "o1", Price: 1.90, Liquidity: 50},
		{Side: PriceSideDemand, OutcomeID: "o1", Price: 1.95, Liquidity: 100},
		{Side: PriceSideDemand, OutcomeID: "o1", Price: 1.90, Liquidity: 25},
		{Side: "For", OutcomeID: "o1", Price: 2.10, Liquidity: 999},
	})

	book := e.Snapshot(42, "ah")
	ladder := book["o1"]
	if len(ladder) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(ladder))
	}
	if ladder[0].Price != 1.95 || ladder[1].Price != 1.90 {
		t.Errorf("ladder not sorted best-first: %+v", ladder)
	}
	if ladder[1].Liquidity != 75 {
		t.Errorf("same-price liquidity not aggregated: %+v", ladder[1])
	}
}

func TestApply_UpsertRemoveAndResort(t *testing.T) {
	e := NewOrderBookEngine()
	e.Seed(42, "x12", []Price{
		{Side: PriceSideDemand, OutcomeID: "home", Price: 2.00, Liquidity: 100},
		{Side: PriceSideDemand, OutcomeID: "home", Price: 1.95, Liquidity: 40},
	})

	book := e.Apply(42, "x12", []Price{
		{Side: PriceSideDemand, OutcomeID: "home", Price: 2.00, Liquidity: 0},  // remove best
		{Side: PriceSideDemand, OutcomeID: "home", Price: 2.05, Liquidity: 30}, // new best
	})

	if got := book.BestPrice("home"); got != 2.05 {
		t.Errorf("BestPrice = %v, want 2.05", got)
	}
	if len(book["home"]) != 2 {
		t.Errorf("expected 2 levels after remove+insert, got %d", len(book["home"]))
	}
}

func TestApply_LazyBookFromDelta(t *testing.T) {
	e := NewOrderBookEngine()
	book := e.Apply(7, "ou", []Price{
		{Side: PriceSideDemand, OutcomeID: "over", Price: 1.85, Liquidity: 10},
	})
	if got := book.BestPrice("over"); got != 1.85 {
		t.Errorf("delta before snapshot should still build a ladder, got %v", got)
	}
}

func TestApply_ZeroLiquidityOnUnknownLevelIsNoop(t *testing.T) {
	e := NewOrderBookEngine()
	book := e.Apply(7, "ou", []Price{
		{Side: PriceSideDemand, OutcomeID: "over", Price: 1.85, Liquidity: 0},
	})
	if len(book["over"]) != 0 {
		t.Errorf("removal of an unseen level should not insert, got %+v", book["over"])
	}
}

func TestBestPrice_EmptyLadder(t *testing.T) {
	if got := (Book{}).BestPrice("missing"); got != 0 {
		t.Errorf("BestPrice on empty book = %v, want 0", got)
	}
}

func TestRemove_DropsAllFixtureBooks(t *testing.T) {
	e := NewOrderBookEngine()
	e.Seed(42, "x12", []Price{{Side: PriceSideDemand, OutcomeID: "o", Price: 2.0, Liquidity: 1}})
	e.Seed(42, "ah", []Price{{Side: PriceSideDemand, OutcomeID: "o", Price: 1.9, Liquidity: 1}})
	e.Seed(43, "x12", []Price{{Side: PriceSideDemand, OutcomeID: "o", Price: 2.1, Liquidity: 1}})

	e.Remove(42)
	if e.Snapshot(42, "x12") != nil || e.Snapshot(42, "ah") != nil {
		t.Error("fixture 42 books should be gone")
	}
	if e.Snapshot(43, "x12") == nil {
		t.Error("fixture 43 book should survive")
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	e := NewOrderBookEngine()
	e.Seed(1, "x12", []Price{{Side: PriceSideDemand, OutcomeID: "o", Price: 2.0, Liquidity: 10}})

	snap := e.Snapshot(1, "x12")
	snap["o"][0].Liquidity = 999

	if e.Snapshot(1, "x12")["o"][0].Liquidity != 10 {
		t.Error("mutating a snapshot must not affect the engine state")
	}
}
