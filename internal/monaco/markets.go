package monaco

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/matchpulse/odds-engine/internal/pkg/models"
)

// Venue market type ids mapped onto storage market type keys.
var marketTypeTable = map[string]string{
	"FOOTBALL_FULL_TIME_RESULT":          models.MarketX12,
	"FOOTBALL_FULL_TIME_RESULT_HANDICAP": models.MarketAH,
	"FOOTBALL_OVER_UNDER_TOTAL_GOALS":    models.MarketOU,
}

var (
	handicapLineRe = regexp.MustCompile(`Goal Handicap ([+-]?[\d.]+)`)
	totalLineRe    = regexp.MustCompile(`Total Goals Over/Under ([\d.]+)`)
)

// Mapping ties one venue market to a fixture's storage slot: its market type,
// line value and position, and the outcome-id ordering inside the price arrays.
type Mapping struct {
	EventID    string
	MarketID   string
	MarketType string

	FixtureID int64

	LineValue float64
	HasLine   bool
	LineIndex int

	// OutcomeSlots maps outcome id to array position, following the venue's
	// declared outcome order (home/draw/away, home/away, over/under).
	OutcomeSlots map[string]int
	OutcomeIDs   []string
}

func marketTypeFor(venueTypeID string) (string, bool) {
	mt, ok := marketTypeTable[venueTypeID]
	return mt, ok
}

// parseLine extracts the handicap or total line from a market. Handicaps live
// only in the display name; totals prefer the structured marketValue field and
// fall back to the name.
func parseLine(mt string, m Market) (float64, bool) {
	switch mt {
	case models.MarketAH:
		if sub := handicapLineRe.FindStringSubmatch(m.Name); sub != nil {
			if v, err := strconv.ParseFloat(sub[1], 64); err == nil {
				return v, true
			}
		}
	case models.MarketOU:
		if m.MarketValue != "" {
			if v, err := strconv.ParseFloat(m.MarketValue, 64); err == nil {
				return v, true
			}
		}
		if sub := totalLineRe.FindStringSubmatch(m.Name); sub != nil {
			if v, err := strconv.ParseFloat(sub[1], 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// BuildMappings turns a markets snapshot into the mapping set. Markets whose
// event does not resolve to a fixture or whose type is unsupported are
// dropped; an unparseable line value falls back to 0 so the market keeps
// flowing, logged as a data quality problem. Line indexes are assigned per
// fixture and market type in ascending line order.
func BuildMappings(page *MarketsPage, resolve func(ev Event) (int64, bool), log *slog.Logger) map[string]Mapping {
	fixtures := make(map[string]int64) // event id -> fixture id
	for _, ev := range page.Events {
		if id, ok := resolve(ev); ok {
			fixtures[ev.ID] = id
		}
	}

	mappings := make(map[string]Mapping)
	for _, m := range page.Markets {
		mt, ok := marketTypeFor(first(m.MarketType.IDs))
		if !ok {
			continue
		}
		eventID := first(m.Event.IDs)
		fixtureID, ok := fixtures[eventID]
		if !ok {
			continue
		}

		mapping := Mapping{
			EventID:    eventID,
			MarketID:   m.ID,
			MarketType: mt,
			FixtureID:  fixtureID,
			OutcomeIDs: m.MarketOutcomes.IDs,
			OutcomeSlots: func() map[string]int {
				slots := make(map[string]int, len(m.MarketOutcomes.IDs))
				for i, id := range m.MarketOutcomes.IDs {
					slots[id] = i
				}
				return slots
			}(),
		}
		if mt != models.MarketX12 {
			value, ok := parseLine(mt, m)
			if !ok {
				log.Warn("failed to parse line value, defaulting to 0",
					"marketId", m.ID, "name", m.Name, "marketType", mt)
			}
			mapping.LineValue = value
			mapping.HasLine = true
		}
		mappings[mappingKey(eventID, m.ID)] = mapping
	}

	assignLineIndexes(mappings)
	return mappings
}

func mappingKey(eventID, marketID string) string {
	return eventID + "|" + marketID
}

func first(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func assignLineIndexes(mappings map[string]Mapping) {
	type group struct {
		fixtureID int64
		mt        string
	}
	byGroup := make(map[group][]string)
	for key, m := range mappings {
		if !m.HasLine {
			continue
		}
		g := group{m.FixtureID, m.MarketType}
		byGroup[g] = append(byGroup[g], key)
	}
	for _, keys := range byGroup {
		sort.Slice(keys, func(i, j int) bool {
			return mappings[keys[i]].LineValue < mappings[keys[j]].LineValue
		})
		for i, key := range keys {
			m := mappings[key]
			m.LineIndex = i
			mappings[key] = m
		}
	}
}

// MarketMapper holds the current mapping set behind a lock so the stream
// handlers and the refetch loop can share it.
type MarketMapper struct {
	mu       sync.RWMutex
	mappings map[string]Mapping
}

func NewMarketMapper() *MarketMapper {
	return &MarketMapper{mappings: make(map[string]Mapping)}
}

// Get looks up the mapping for a stream message's event+market pair.
func (m *MarketMapper) Get(eventID, marketID string) (Mapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, ok := m.mappings[mappingKey(eventID, marketID)]
	return mp, ok
}

// FixtureMappings returns all mappings of one fixture and market type, ordered
// by line index.
func (m *MarketMapper) FixtureMappings(fixtureID int64, marketType string) []Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Mapping
	for _, mp := range m.mappings {
		if mp.FixtureID == fixtureID && mp.MarketType == marketType {
			out = append(out, mp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineIndex < out[j].LineIndex })
	return out
}

// Replace swaps in a freshly built set and reports fixtures whose market
// structure changed: markets added or removed, or a line value or position
// moved. Those fixtures need their stored lines/ids metadata rewritten.
func (m *MarketMapper) Replace(next map[string]Mapping) []int64 {
	m.mu.Lock()
	prev := m.mappings
	m.mappings = next
	m.mu.Unlock()

	changed := make(map[int64]bool)
	for key, nm := range next {
		pm, ok := prev[key]
		if !ok {
			changed[nm.FixtureID] = true
			continue
		}
		if pm.LineValue != nm.LineValue || pm.LineIndex != nm.LineIndex || pm.FixtureID != nm.FixtureID {
			changed[nm.FixtureID] = true
			changed[pm.FixtureID] = true
		}
	}
	for key, pm := range prev {
		if _, ok := next[key]; !ok {
			changed[pm.FixtureID] = true
		}
	}

	out := make([]int64, 0, len(changed))
	for id := range changed {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
