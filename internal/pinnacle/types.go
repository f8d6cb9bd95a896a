package pinnacle

// MarketsResponse is one page of the incremental markets feed. Last is the
// cursor echoed back as "since" on the next poll.
type MarketsResponse struct {
	SportID int64   `json:"sport_id"`
	Last    int64   `json:"last"`
	Events  []Event `json:"events"`
}

type Event struct {
	EventID  int64    `json:"event_id"`
	LeagueID int64    `json:"league_id"`
	Starts   string   `json:"starts"`
	Home     string   `json:"home"`
	Away     string   `json:"away"`
	Periods  *Periods `json:"periods"`
}

// Periods carries per-period odds. Only the full match period (num_0) is
// stored.
type Periods struct {
	Num0 *Period `json:"num_0"`
}

// periodStatusOpen is the feed's "open for betting" period status.
const periodStatusOpen = 1

type Period struct {
	LineID       int64             `json:"line_id"`
	Cutoff       string            `json:"cutoff"`
	PeriodStatus int               `json:"period_status"`
	MoneyLine    *MoneyLine        `json:"money_line"`
	Spreads      map[string]Spread `json:"spreads"`
	Totals       map[string]Total  `json:"totals"`
	Meta         *Meta             `json:"meta"`
}

type MoneyLine struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// Spread is one handicap line, keyed in the spreads map by its stringified
// line value.
type Spread struct {
	Hdp       float64 `json:"hdp"`
	AltLineID int64   `json:"alt_line_id"`
	Home      float64 `json:"home"`
	Away      float64 `json:"away"`
}

type Total struct {
	Points    float64 `json:"points"`
	AltLineID int64   `json:"alt_line_id"`
	Over      float64 `json:"over"`
	Under     float64 `json:"under"`
}

// Meta carries the per-market open flags and stake caps published alongside
// the odds.
type Meta struct {
	MaxMoneyLine  *float64 `json:"max_money_line"`
	MaxSpread     *float64 `json:"max_spread"`
	MaxTotal      *float64 `json:"max_total"`
	OpenMoneyLine bool     `json:"open_money_line"`
	OpenSpreads   bool     `json:"open_spreads"`
	OpenTotals    bool     `json:"open_totals"`
}
