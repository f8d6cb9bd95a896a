package monaco

import (
	"sort"
	"sync"
)

// PriceLevel is one aggregated liquidity level on an outcome's demand side.
type PriceLevel struct {
	Price     float64
	Liquidity float64
}

// Book maps outcome id to its demand ladder, best price first.
type Book map[string][]PriceLevel

// BestPrice returns the top-of-book price for an outcome, 0 when the ladder
// is empty or the outcome is unknown.
func (b Book) BestPrice(outcomeID string) float64 {
	levels := b[outcomeID]
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Price
}

type bookKey struct {
	fixtureID  int64
	marketType string
}

// OrderBookEngine keeps one demand-side book per (fixture, market type) pair.
// Snapshots seed the ladders; stream deltas mutate them level by level.
type OrderBookEngine struct {
	mu    sync.Mutex
	books map[bookKey]Book
}

func NewOrderBookEngine() *OrderBookEngine {
	return &OrderBookEngine{books: make(map[bookKey]Book)}
}

// Seed replaces the book for a (fixture, market type) pair from a full market
// snapshot, aggregating liquidity per price per outcome. Supply-side prices
// are ignored.
func (e *OrderBookEngine) Seed(fixtureID int64, marketType string, prices []Price) {
	book := make(Book)
	agg := make(map[string]map[float64]float64)
	for _, p := range prices {
		if p.Side != PriceSideDemand {
			continue
		}
		if agg[p.OutcomeID] == nil {
			agg[p.OutcomeID] = make(map[float64]float64)
		}
		agg[p.OutcomeID][p.Price] += p.Liquidity
	}
	for outcome, levels := range agg {
		ladder := make([]PriceLevel, 0, len(levels))
		for price, liq := range levels {
			ladder = append(ladder, PriceLevel{Price: price, Liquidity: liq})
		}
		sortLadder(ladder)
		book[outcome] = ladder
	}

	e.mu.Lock()
	e.books[bookKey{fixtureID, marketType}] = book
	e.mu.Unlock()
}

// Apply merges price deltas into the book and returns a copy of the updated
// ladders. Zero liquidity removes the level; an unseen price inserts one; the
// book is created lazily when a delta arrives before the snapshot.
func (e *OrderBookEngine) Apply(fixtureID int64, marketType string, deltas []Price) Book {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := bookKey{fixtureID, marketType}
	book := e.books[key]
	if book == nil {
		book = make(Book)
		e.books[key] = book
	}

	touched := make(map[string]bool)
	for _, d := range deltas {
		if d.Side != PriceSideDemand {
			continue
		}
		book[d.OutcomeID] = applyLevel(book[d.OutcomeID], d)
		touched[d.OutcomeID] = true
	}
	for outcome := range touched {
		sortLadder(book[outcome])
	}
	return copyBook(book)
}

// Snapshot returns a copy of the current book, nil when absent.
func (e *OrderBookEngine) Snapshot(fixtureID int64, marketType string) Book {
	e.mu.Lock()
	defer e.mu.Unlock()
	book := e.books[bookKey{fixtureID, marketType}]
	if book == nil {
		return nil
	}
	return copyBook(book)
}

// Remove drops all books of a fixture, used when its markets close.
func (e *OrderBookEngine) Remove(fixtureID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.books {
		if key.fixtureID == fixtureID {
			delete(e.books, key)
		}
	}
}

func applyLevel(ladder []PriceLevel, d Price) []PriceLevel {
	for i := range ladder {
		if ladder[i].Price == d.Price {
			if d.Liquidity == 0 {
				return append(ladder[:i], ladder[i+1:]...)
			}
			ladder[i].Liquidity = d.Liquidity
			return ladder
		}
	}
	if d.Liquidity == 0 {
		return ladder
	}
	return append(ladder, PriceLevel{Price: d.Price, Liquidity: d.Liquidity})
}

func sortLadder(ladder []PriceLevel) {
	sort.Slice(ladder, func(i, j int) bool { return ladder[i].Price > ladder[j].Price })
}

func copyBook(book Book) Book {
	out := make(Book, len(book))
	for outcome, ladder := range book {
		cp := make([]PriceLevel, len(ladder))
		copy(cp, ladder)
		out[outcome] = cp
	}
	return out
}
