package monaco

import (
	"testing"

	"github.com/matchpulse/odds-engine/internal/pkg/models"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name      string
		mt        string
		market    Market
		wantValue float64
		wantOK    bool
	}{
		{
			name:      "negative handicap from name",
			mt:        models.MarketAH,
			market:    Market{Name: "Arsenal v Chelsea - Goal Handicap -0.5"},
			wantValue: -0.5, wantOK: true,
		},
		{
			name:      "positive handicap with sign",
			mt:        models.MarketAH,
			market:    Market{Name: "Goal Handicap +1.25"},
			wantValue: 1.25, wantOK: true,
		},
		{
			name:      "total from marketValue preferred",
			mt:        models.MarketOU,
			market:    Market{Name: "Total Goals Over/Under 3.5", MarketValue: "2.5"},
			wantValue: 2.5, wantOK: true,
		},
		{
			name:      "total falls back to name",
			mt:        models.MarketOU,
			market:    Market{Name: "Total Goals Over/Under 2.5"},
			wantValue: 2.5, wantOK: true,
		},
		{
			name:   "handicap name without line",
			mt:     models.MarketAH,
			market: Market{Name: "Full Time Result"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLine(tt.mt, tt.market)
			if ok != tt.wantOK || (ok && got != tt.wantValue) {
				t.Errorf("parseLine() = (%v, %v), want (%v, %v)", got, ok, tt.wantValue, tt.wantOK)
			}
		})
	}
}

func snapshotPage() *MarketsPage {
	return &MarketsPage{
		Events: []Event{
			{ID: "E1", Name: "Arsenal v Chelsea"},
			{ID: "E2", Name: "Lyon v Lille"},
		},
		Markets: []Market{
			{
				ID:             "M1",
				Name:           "Full Time Result",
				MarketType:     Ref{IDs: []string{"FOOTBALL_FULL_TIME_RESULT"}},
				Event:          Ref{IDs: []string{"E1"}},
				MarketOutcomes: Ref{IDs: []string{"home", "draw", "away"}},
			},
			{
				ID:             "M2",
				Name:           "Goal Handicap -0.5",
				MarketType:     Ref{IDs: []string{"FOOTBALL_FULL_TIME_RESULT_HANDICAP"}},
				Event:          Ref{IDs: []string{"E1"}},
				MarketOutcomes: Ref{IDs: []string{"h", "a"}},
			},
			{
				ID:             "M3",
				Name:           "Goal Handicap -1.5",
				MarketType:     Ref{IDs: []string{"FOOTBALL_FULL_TIME_RESULT_HANDICAP"}},
				Event:          Ref{IDs: []string{"E1"}},
				MarketOutcomes: Ref{IDs: []string{"h", "a"}},
			},
			{
				ID:             "M4",
				Name:           "Some Other Market",
				MarketType:     Ref{IDs: []string{"FOOTBALL_CORNERS"}},
				Event:          Ref{IDs: []string{"E1"}},
				MarketOutcomes: Ref{IDs: []string{"x"}},
			},
			{
				ID:             "M5",
				Name:           "Full Time Result",
				MarketType:     Ref{IDs: []string{"FOOTBALL_FULL_TIME_RESULT"}},
				Event:          Ref{IDs: []string{"E2"}},
				MarketOutcomes: Ref{IDs: []string{"home", "draw", "away"}},
			},
		},
	}
}

func resolveE1Only(ev Event) (int64, bool) {
	if ev.ID == "E1" {
		return 42, true
	}
	return 0, false
}

func TestBuildMappings(t *testing.T) {
	mappings := BuildMappings(snapshotPage(), resolveE1Only, discardLogger())

	if len(mappings) != 3 {
		t.Fatalf("expected 3 mappings (x12 + two handicaps), got %d", len(mappings))
	}

	x12, ok := mappings[mappingKey("E1", "M1")]
	if !ok || x12.FixtureID != 42 || x12.MarketType != models.MarketX12 {
		t.Errorf("x12 mapping wrong: %+v", x12)
	}
	if x12.OutcomeSlots["draw"] != 1 {
		t.Errorf("outcome slots should follow venue order, got %+v", x12.OutcomeSlots)
	}

	ah15 := mappings[mappingKey("E1", "M3")]
	ah05 := mappings[mappingKey("E1", "M2")]
	if ah15.LineValue != -1.5 || ah05.LineValue != -0.5 {
		t.Fatalf("line values wrong: %+v %+v", ah15, ah05)
	}
	if ah15.LineIndex != 0 || ah05.LineIndex != 1 {
		t.Errorf("lines should be indexed ascending: -1.5 at 0, -0.5 at 1; got %d and %d",
			ah15.LineIndex, ah05.LineIndex)
	}

	if _, ok := mappings[mappingKey("E2", "M5")]; ok {
		t.Error("markets of unresolved events must be dropped")
	}
	if _, ok := mappings[mappingKey("E1", "M4")]; ok {
		t.Error("unsupported market types must be dropped")
	}
}

func TestBuildMappings_UnparseableLineFallsBackToZero(t *testing.T) {
	page := &MarketsPage{
		Events: []Event{{ID: "E1", Name: "Arsenal v Chelsea"}},
		Markets: []Market{{
			ID:             "M9",
			Name:           "Goal Handicap TBD",
			MarketType:     Ref{IDs: []string{"FOOTBALL_FULL_TIME_RESULT_HANDICAP"}},
			Event:          Ref{IDs: []string{"E1"}},
			MarketOutcomes: Ref{IDs: []string{"h", "a"}},
		}},
	}
	mappings := BuildMappings(page, resolveE1Only, discardLogger())

	m, ok := mappings[mappingKey("E1", "M9")]
	if !ok {
		t.Fatal("market with unparseable line must not be dropped")
	}
	if m.LineValue != 0 || !m.HasLine {
		t.Errorf("unparseable line should fall back to 0, got %+v", m)
	}
}

func TestReplace_ReportsStructureChanges(t *testing.T) {
	mapper := NewMarketMapper()
	mapper.Replace(BuildMappings(snapshotPage(), resolveE1Only, discardLogger()))

	// Same snapshot again: nothing changed.
	if changed := mapper.Replace(BuildMappings(snapshotPage(), resolveE1Only, discardLogger())); len(changed) != 0 {
		t.Errorf("identical snapshot should report no changes, got %v", changed)
	}

	// Drop one handicap market: fixture flagged, surviving line re-indexed.
	page := snapshotPage()
	page.Markets = append(page.Markets[:1], page.Markets[2:]...) // remove M2
	changed := mapper.Replace(BuildMappings(page, resolveE1Only, discardLogger()))
	if len(changed) != 1 || changed[0] != 42 {
		t.Errorf("removed market should flag fixture 42, got %v", changed)
	}

	ah := mapper.FixtureMappings(42, models.MarketAH)
	if len(ah) != 1 || ah[0].LineIndex != 0 {
		t.Errorf("surviving handicap should occupy index 0, got %+v", ah)
	}
}

func TestFixtureMappings_OrderedByLineIndex(t *testing.T) {
	mapper := NewMarketMapper()
	mapper.Replace(BuildMappings(snapshotPage(), resolveE1Only, discardLogger()))

	ah := mapper.FixtureMappings(42, models.MarketAH)
	if len(ah) != 2 || ah[0].LineValue != -1.5 || ah[1].LineValue != -0.5 {
		t.Errorf("handicap mappings out of order: %+v", ah)
	}
}
