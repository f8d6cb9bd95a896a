package pinnacle

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/matchpulse/odds-engine/internal/pkg/models"
	"github.com/matchpulse/odds-engine/internal/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	rows    map[int64]*storage.OddsRow // keyed by fixture id
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[int64]*storage.OddsRow)}
}

func (f *fakeStore) GetOddsRowsByBookieIDs(_ context.Context, _ string, bookieIDs []int64) ([]storage.OddsRow, error) {
	var out []storage.OddsRow
	for _, row := range f.rows {
		for _, id := range bookieIDs {
			if row.BookieID == id {
				out = append(out, *row)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertOddsRow(_ context.Context, row *storage.OddsRow) error {
	cp := *row
	f.rows[row.FixtureID] = &cp
	f.upserts++
	return nil
}

func openPeriod() *Period {
	maxML, maxSpread := 500.0, 750.0
	return &Period{
		LineID:       9001,
		Cutoff:       "2026-03-07T15:00:00",
		PeriodStatus: periodStatusOpen,
		MoneyLine:    &MoneyLine{Home: 1.952, Draw: 3.410, Away: 4.200},
		Spreads: map[string]Spread{
			"0.5":   {Hdp: 0.5, AltLineID: 11, Home: 1.877, Away: 1.985},
			"-0.25": {Hdp: -0.25, AltLineID: 10, Home: 2.120, Away: 1.751},
		},
		Totals: map[string]Total{
			"2.5": {Points: 2.5, AltLineID: 21, Over: 1.901, Under: 1.952},
		},
		Meta: &Meta{
			MaxMoneyLine:  &maxML,
			MaxSpread:     &maxSpread,
			OpenMoneyLine: true,
			OpenSpreads:   true,
		},
	}
}

func TestBuildPeriodColumns_ScalesAndOrdersLines(t *testing.T) {
	cols := buildPeriodColumns(openPeriod(), 1000)

	x12 := cols.X12[0]["x12"].([]int)
	if x12[0] != 1952 || x12[1] != 3410 || x12[2] != 4200 {
		t.Errorf("x12 scaling wrong: %v", x12)
	}

	lines := cols.Lines[0]["ah"].([]float64)
	if lines[0] != -0.25 || lines[1] != 0.5 {
		t.Errorf("spread lines must sort numerically ascending, got %v", lines)
	}
	ahH := cols.AH[0]["ah_h"].([]int)
	if ahH[0] != 2120 || ahH[1] != 1877 {
		t.Errorf("ah_h must follow the sorted line order, got %v", ahH)
	}

	ids := cols.IDs[0]
	if ids["line_id"].(int64) != 9001 {
		t.Errorf("ids entry should carry the period line id, got %v", ids["line_id"])
	}
	altIDs := ids["line_ids"].(map[string]any)["ah"].([]int64)
	if altIDs[0] != 10 || altIDs[1] != 11 {
		t.Errorf("alt line ids out of order: %v", altIDs)
	}

	stakes := cols.Stakes[0]
	if got := stakes["max_stake_x12"].([]float64); got[0] != 500 {
		t.Errorf("money line stake cap wrong: %v", got)
	}
	if got := stakes["max_stake_ou"].(map[string]any); len(got) != 0 {
		t.Errorf("absent total cap should yield an empty object, got %v", got)
	}
}

func TestApply_InsertsThenSuppressesIdenticalSnapshot(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, testLogger())
	ctx := context.Background()

	changed, err := rec.Apply(ctx, 42, 777, openPeriod(), nil)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if !changed || store.upserts != 1 {
		t.Fatalf("first apply should write, changed=%v upserts=%d", changed, store.upserts)
	}

	row := store.rows[42]
	if row.BookieID != 777 || row.Bookie != BookieName {
		t.Errorf("row identity wrong: %+v", row)
	}

	// Same snapshot again, differing only in time: nothing to write.
	changed, err = rec.Apply(ctx, 42, 777, openPeriod(), row)
	if err != nil {
		t.Fatal(err)
	}
	if changed || store.upserts != 1 {
		t.Errorf("identical snapshot must not write, changed=%v upserts=%d", changed, store.upserts)
	}
}

func TestApply_AppendsOnPriceMove(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, testLogger())
	ctx := context.Background()

	if _, err := rec.Apply(ctx, 42, 777, openPeriod(), nil); err != nil {
		t.Fatal(err)
	}

	moved := openPeriod()
	moved.MoneyLine.Home = 1.971
	changed, err := rec.Apply(ctx, 42, 777, moved, store.rows[42])
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("price move must write")
	}

	history := models.DecodeHistory(store.rows[42].OddsX12)
	if len(history) != 2 {
		t.Fatalf("x12 history should have grown to 2, got %d", len(history))
	}
	// The unchanged handicap history must not have grown.
	if ah := models.DecodeHistory(store.rows[42].OddsAH); len(ah) != 1 {
		t.Errorf("unchanged ah history should stay at 1 entry, got %d", len(ah))
	}
}

func TestZeroPeriod_KeepsLinesZeroesPrices(t *testing.T) {
	z := zeroPeriod(openPeriod())

	if z.MoneyLine.Home != 0 || z.MoneyLine.Away != 0 {
		t.Errorf("money line not zeroed: %+v", z.MoneyLine)
	}
	s := z.Spreads["-0.25"]
	if s.Hdp != -0.25 || s.AltLineID != 10 {
		t.Errorf("line metadata must survive zeroing: %+v", s)
	}
	if s.Home != 0 || s.Away != 0 {
		t.Errorf("spread prices not zeroed: %+v", s)
	}
	if *z.Meta.MaxMoneyLine != 0 {
		t.Errorf("stake caps must zero, got %v", *z.Meta.MaxMoneyLine)
	}
}

func TestApply_ZeroSnapshotAppendsOnce(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, testLogger())
	ctx := context.Background()

	if _, err := rec.Apply(ctx, 42, 777, openPeriod(), nil); err != nil {
		t.Fatal(err)
	}
	z := zeroPeriod(openPeriod())
	if changed, _ := rec.Apply(ctx, 42, 777, z, store.rows[42]); !changed {
		t.Fatal("first zero snapshot must write")
	}
	if changed, _ := rec.Apply(ctx, 42, 777, z, store.rows[42]); changed {
		t.Error("repeated zero snapshot must be suppressed")
	}

	history := models.DecodeHistory(store.rows[42].OddsX12)
	last := history[len(history)-1]
	for _, v := range last["x12"].([]any) {
		if v.(float64) != 0 {
			t.Errorf("zero snapshot should store zeros, got %v", last)
		}
	}
}
