package models

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
)

// Market type keys shared by the store schema and both venue adapters.
const (
	MarketX12 = "x12" // full time result (moneyline)
	MarketAH  = "ah"  // Asian handicap
	MarketOU  = "ou"  // total goals over/under
)

// MarketTypes lists all supported market type keys in storage order.
var MarketTypes = []string{MarketX12, MarketAH, MarketOU}

// Entry is one timestamped snapshot inside an append-only history column
// (odds_x12/odds_ah/odds_ou, lines, ids, max_stakes). The "t" key holds unix
// seconds; the remaining keys are market-specific arrays.
type Entry map[string]any

// T returns the entry timestamp in unix seconds, 0 when absent.
func (e Entry) T() int64 {
	switch v := e["t"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// MergeEntry merges a new snapshot into a history array: an existing entry with
// the same timestamp is replaced in place, a novel timestamp is appended, and
// the result stays sorted ascending by t. At most one entry per second.
func MergeEntry(history []Entry, entry Entry) []Entry {
	t := entry.T()
	for i := range history {
		if history[i].T() == t {
			history[i] = entry
			return history
		}
	}
	history = append(history, entry)
	sort.SliceStable(history, func(i, j int) bool { return history[i].T() < history[j].T() })
	return history
}

// SameIgnoringTime reports whether two entries carry identical data outside the
// "t" field. Both sides are round-tripped through JSON so values read back from
// the store (always float64) compare equal to freshly built ones (ints, typed
// slices).
func SameIgnoringTime(a, b Entry) bool {
	return reflect.DeepEqual(canonical(a), canonical(b))
}

func canonical(e Entry) map[string]any {
	stripped := make(map[string]any, len(e))
	for k, v := range e {
		if k == "t" {
			continue
		}
		stripped[k] = v
	}
	raw, err := json.Marshal(stripped)
	if err != nil {
		return stripped
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return stripped
	}
	return out
}

// DecodeHistory parses a JSON history column into entries. A NULL or empty
// column yields an empty history.
func DecodeHistory(raw []byte) []Entry {
	if len(raw) == 0 {
		return nil
	}
	var out []Entry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// ShadeMonacoPrice converts a raw Monaco decimal price into the stored
// fixed-point representation: shave 1% off the net price, then scale by 1000.
// Shade(1.95) = floor(((1.95-1)*0.99+1)*1000) = 1940.
func ShadeMonacoPrice(price float64) int {
	return int(math.Floor(((price-1)*0.99 + 1) * 1000))
}

// ScalePinnaclePrice converts Pinnacle decimal odds (already 3-decimal) into
// the stored fixed-point representation. No shading on the poll venue.
func ScalePinnaclePrice(price float64) int {
	return int(math.Round(price * 1000))
}
