package monaco

import "time"

// Ref is the venue's reference shape: a list of ids plus the referenced type.
type Ref struct {
	IDs []string `json:"_ids"`
	Ref string   `json:"_ref"`
}

// Market is one market object from GET /markets.
type Market struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	MarketType     Ref     `json:"marketType"`
	Event          Ref     `json:"event"`
	MarketOutcomes Ref     `json:"marketOutcomes"`
	Prices         []Price `json:"prices"`
	Status         string  `json:"status"`
	MarketValue    string  `json:"marketValue"`
	InPlayStatus   string  `json:"inPlayStatus"`
}

// Price is one demand-or-supply side price entry. Only the demand side
// ("Against") is order-book relevant.
type Price struct {
	Side      string  `json:"side"`
	OutcomeID string  `json:"outcomeId"`
	Price     float64 `json:"price"`
	Liquidity float64 `json:"liquidity"`
}

// PriceSideDemand marks entries that take part in order book construction.
const PriceSideDemand = "Against"

// Event is one event object from GET /markets.
type Event struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ExpectedStartTime string `json:"expectedStartTime"`
	EventGroup        Ref    `json:"eventGroup"`
}

// MarketsPage is one page of the paginated markets endpoint.
type MarketsPage struct {
	Markets []Market `json:"markets"`
	Events  []Event  `json:"events"`
}

// Session is the token bundle returned by POST /sessions and /sessions/refresh.
type Session struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	AccessExpiresAt  string `json:"accessExpiresAt"`
	RefreshExpiresAt string `json:"refreshExpiresAt"`
}

// Stream message types carried on the websocket.
const (
	MsgAuthenticationUpdate = "AuthenticationUpdate"
	MsgMarketPriceUpdate    = "MarketPriceUpdate"
	MsgMarketStatusUpdate   = "MarketStatusUpdate"
	MsgEventUpdate          = "EventUpdate"
)

// StreamMessage is one decoded websocket frame. Unknown types are logged and
// skipped at the batcher rather than partially decoded.
type StreamMessage struct {
	Type         string  `json:"type"`
	MarketID     string  `json:"marketId"`
	EventID      string  `json:"eventId"`
	Status       string  `json:"status"`
	InPlayStatus string  `json:"inPlayStatus"`
	Prices       []Price `json:"prices"`

	ReceivedAt time.Time `json:"-"`
}
