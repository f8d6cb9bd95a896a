package monaco

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/matchpulse/odds-engine/internal/pkg/models"
	"github.com/matchpulse/odds-engine/internal/pkg/storage"
)

// BookieName keys this venue's rows in football_odds.
const BookieName = "monaco"

const (
	bookieID      = 1
	priceDecimals = 3
)

// OddsStore is the slice of the store the reconciler writes through.
type OddsStore interface {
	GetOddsRow(ctx context.Context, fixtureID int64, bookie string) (*storage.OddsRow, error)
	InsertOddsRow(ctx context.Context, row *storage.OddsRow) error
	UpdateOddsColumns(ctx context.Context, fixtureID int64, bookie string, cols map[string]any) error
}

// Reconciler translates order book state into the odds row's history columns.
// All writes for one fixture arrive through the update serializer, so methods
// here can read-modify-write without their own locking.
type Reconciler struct {
	store OddsStore
	log   *slog.Logger
}

func NewReconciler(store OddsStore, log *slog.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// EnsureRecord seeds the odds row for a fixture on first sight and keeps its
// lines/ids metadata current afterwards. Price histories are never rewritten
// here, only the structural columns.
func (r *Reconciler) EnsureRecord(ctx context.Context, fixtureID int64, mapper *MarketMapper) error {
	x12 := mapper.FixtureMappings(fixtureID, models.MarketX12)
	ah := mapper.FixtureMappings(fixtureID, models.MarketAH)
	ou := mapper.FixtureMappings(fixtureID, models.MarketOU)

	now := time.Now().Unix()
	linesEntry := models.Entry{"t": now}
	if len(ah) > 0 {
		linesEntry["ah"] = lineValues(ah)
	}
	if len(ou) > 0 {
		linesEntry["ou"] = lineValues(ou)
	}
	idsEntry := models.Entry{"t": now}
	if len(x12) > 0 {
		idsEntry["line_id"] = x12[0].MarketID
	}
	lineIDs := make(map[string]any)
	if len(ah) > 0 {
		lineIDs["ah"] = marketIDs(ah)
	}
	if len(ou) > 0 {
		lineIDs["ou"] = marketIDs(ou)
	}
	if len(lineIDs) > 0 {
		idsEntry["line_ids"] = lineIDs
	}

	row, err := r.store.GetOddsRow(ctx, fixtureID, BookieName)
	if err != nil {
		return err
	}
	if row == nil {
		return r.insertSeedRow(ctx, fixtureID, x12, ah, ou, linesEntry, idsEntry, now)
	}

	cols := make(map[string]any)
	latest := decodeLatest(row.LatestT)

	lines := models.DecodeHistory(row.Lines)
	if len(lines) == 0 || !models.SameIgnoringTime(lines[len(lines)-1], linesEntry) {
		lines = models.MergeEntry(lines, linesEntry)
		raw, err := json.Marshal(lines)
		if err != nil {
			return fmt.Errorf("failed to encode lines history: %w", err)
		}
		cols["lines"] = raw
		latest["lines_ts"] = now
	}

	ids := models.DecodeHistory(row.IDs)
	if len(ids) == 0 || !models.SameIgnoringTime(ids[len(ids)-1], idsEntry) {
		ids = models.MergeEntry(ids, idsEntry)
		raw, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("failed to encode ids history: %w", err)
		}
		cols["ids"] = raw
		latest["ids_ts"] = now
	}

	if len(cols) == 0 {
		return nil
	}
	rawLatest, err := json.Marshal(latest)
	if err != nil {
		return fmt.Errorf("failed to encode latest_t: %w", err)
	}
	cols["latest_t"] = rawLatest
	return r.store.UpdateOddsColumns(ctx, fixtureID, BookieName, cols)
}

func (r *Reconciler) insertSeedRow(ctx context.Context, fixtureID int64, x12, ah, ou []Mapping, linesEntry, idsEntry models.Entry, now int64) error {
	stakes := models.Entry{"t": now}
	if len(x12) > 0 {
		stakes["x12"] = make([]float64, 3)
	}
	if len(ah) > 0 {
		stakes["ah_h"] = make([]float64, len(ah))
		stakes["ah_a"] = make([]float64, len(ah))
	}
	if len(ou) > 0 {
		stakes["ou_o"] = make([]float64, len(ou))
		stakes["ou_u"] = make([]float64, len(ou))
	}
	latest := map[string]any{"lines_ts": now, "ids_ts": now, "stakes_ts": now}

	row := &storage.OddsRow{
		FixtureID: fixtureID,
		BookieID:  bookieID,
		Bookie:    BookieName,
		Decimals:  priceDecimals,
	}
	var err error
	if row.OddsX12, err = json.Marshal([]models.Entry{}); err != nil {
		return err
	}
	row.OddsAH = row.OddsX12
	row.OddsOU = row.OddsX12
	if row.Lines, err = json.Marshal([]models.Entry{linesEntry}); err != nil {
		return err
	}
	if row.IDs, err = json.Marshal([]models.Entry{idsEntry}); err != nil {
		return err
	}
	if row.MaxStakes, err = json.Marshal([]models.Entry{stakes}); err != nil {
		return err
	}
	if row.LatestT, err = json.Marshal(latest); err != nil {
		return err
	}

	if err := r.store.InsertOddsRow(ctx, row); err != nil {
		return err
	}
	r.log.Info("seeded odds record", "fixtureId", fixtureID, "bookie", BookieName)
	return nil
}

// ApplyBook writes the current top-of-book prices of one market type into the
// fixture's history. Every delta appends an entry; within one second the
// newest snapshot replaces the previous one.
func (r *Reconciler) ApplyBook(ctx context.Context, fixtureID int64, marketType string, book Book, mappings []Mapping) error {
	if len(mappings) == 0 {
		return nil
	}
	row, err := r.store.GetOddsRow(ctx, fixtureID, BookieName)
	if err != nil {
		return err
	}
	if row == nil {
		r.log.Debug("odds row missing, skipping book write", "fixtureId", fixtureID)
		return nil
	}

	now := time.Now().Unix()
	entry, stakes := buildOddsEntry(marketType, book, mappings, now)

	cols := make(map[string]any)
	latest := decodeLatest(row.LatestT)

	history := models.MergeEntry(models.DecodeHistory(historyColumn(row, marketType)), entry)
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode odds history: %w", err)
	}
	cols["odds_"+marketType] = raw
	latest[marketType+"_ts"] = now

	// max_stakes keeps a single rolling entry shared by all market types, so
	// merge this type's keys over the previous values.
	stakesEntry := models.Entry{"t": now}
	prevStakes := models.DecodeHistory(row.MaxStakes)
	if len(prevStakes) > 0 {
		for k, v := range prevStakes[len(prevStakes)-1] {
			if k != "t" {
				stakesEntry[k] = v
			}
		}
	}
	for k, v := range stakes {
		stakesEntry[k] = v
	}
	if len(prevStakes) == 0 || !models.SameIgnoringTime(prevStakes[len(prevStakes)-1], stakesEntry) {
		rawStakes, err := json.Marshal([]models.Entry{stakesEntry})
		if err != nil {
			return fmt.Errorf("failed to encode max stakes: %w", err)
		}
		cols["max_stakes"] = rawStakes
		latest["stakes_ts"] = now
	}

	rawLatest, err := json.Marshal(latest)
	if err != nil {
		return fmt.Errorf("failed to encode latest_t: %w", err)
	}
	cols["latest_t"] = rawLatest
	return r.store.UpdateOddsColumns(ctx, fixtureID, BookieName, cols)
}

// ZeroMarket appends an all-zero snapshot for a market type, marking it closed
// or in-play without erasing its history.
func (r *Reconciler) ZeroMarket(ctx context.Context, fixtureID int64, marketType string, mappings []Mapping) error {
	return r.ApplyBook(ctx, fixtureID, marketType, Book{}, mappings)
}

// buildOddsEntry converts top-of-book prices into a history entry plus the
// stake keys for max_stakes. Missing prices become zero, never a shaded zero.
func buildOddsEntry(marketType string, book Book, mappings []Mapping, now int64) (models.Entry, map[string]any) {
	entry := models.Entry{"t": now}
	stakes := make(map[string]any)

	switch marketType {
	case models.MarketX12:
		prices := make([]int, 3)
		liq := make([]float64, 3)
		m := mappings[0]
		for i := 0; i < 3 && i < len(m.OutcomeIDs); i++ {
			prices[i] = shadeBest(book, m.OutcomeIDs[i])
			liq[i] = topLiquidity(book, m.OutcomeIDs[i])
		}
		entry["x12"] = prices
		stakes["x12"] = liq
	case models.MarketAH:
		h, a, lh, la := sidedArrays(book, mappings)
		entry["ah_h"], entry["ah_a"] = h, a
		stakes["ah_h"], stakes["ah_a"] = lh, la
	case models.MarketOU:
		o, u, lo, lu := sidedArrays(book, mappings)
		entry["ou_o"], entry["ou_u"] = o, u
		stakes["ou_o"], stakes["ou_u"] = lo, lu
	}
	return entry, stakes
}

// sidedArrays builds the two-sided price and liquidity vectors for lined
// markets. Mappings arrive ordered by line index; outcome ids follow the
// venue's declared order, first side then second side.
func sidedArrays(book Book, mappings []Mapping) ([]int, []int, []float64, []float64) {
	n := len(mappings)
	first := make([]int, n)
	second := make([]int, n)
	liqFirst := make([]float64, n)
	liqSecond := make([]float64, n)
	for i, m := range mappings {
		if len(m.OutcomeIDs) >= 1 {
			first[i] = shadeBest(book, m.OutcomeIDs[0])
			liqFirst[i] = topLiquidity(book, m.OutcomeIDs[0])
		}
		if len(m.OutcomeIDs) >= 2 {
			second[i] = shadeBest(book, m.OutcomeIDs[1])
			liqSecond[i] = topLiquidity(book, m.OutcomeIDs[1])
		}
	}
	return first, second, liqFirst, liqSecond
}

func shadeBest(book Book, outcomeID string) int {
	p := book.BestPrice(outcomeID)
	if p <= 0 {
		return 0
	}
	return models.ShadeMonacoPrice(p)
}

func topLiquidity(book Book, outcomeID string) float64 {
	levels := book[outcomeID]
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Liquidity
}

func historyColumn(row *storage.OddsRow, marketType string) []byte {
	switch marketType {
	case models.MarketX12:
		return row.OddsX12
	case models.MarketAH:
		return row.OddsAH
	case models.MarketOU:
		return row.OddsOU
	}
	return nil
}

func decodeLatest(raw []byte) map[string]any {
	latest := make(map[string]any)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &latest)
	}
	return latest
}

func lineValues(mappings []Mapping) []float64 {
	out := make([]float64, len(mappings))
	for i, m := range mappings {
		out[i] = m.LineValue
	}
	return out
}

func marketIDs(mappings []Mapping) []string {
	out := make([]string, len(mappings))
	for i, m := range mappings {
		out[i] = m.MarketID
	}
	return out
}
