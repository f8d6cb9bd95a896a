package pinnacle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/matchpulse/odds-engine/internal/pkg/config"
	"github.com/matchpulse/odds-engine/internal/pkg/ratelimit"
)

// Client polls the incremental markets feed. The since cursor comes from the
// previous response, so consecutive polls only carry events that changed. The
// request timeout is deliberately short; a slow response is worth less than
// the next poll.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter

	since int64
}

func NewClient(cfg *config.PinnacleConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    ratelimit.NewLimiter(1, time.Second),
	}
}

// FetchMarkets performs one poll and advances the cursor. The first call asks
// for changes since now, so a restart never replays the venue's full history.
func (c *Client) FetchMarkets(ctx context.Context) (*MarketsResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	since := c.since
	if since == 0 {
		since = time.Now().Unix()
	}

	q := url.Values{}
	q.Set("event_type", "prematch")
	q.Set("sport_id", "1")
	q.Set("since", strconv.FormatInt(since, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/kit/v1/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build markets request: %w", err)
	}
	req.Header.Set("x-rapidapi-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("markets request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("markets request returned %d: %s", resp.StatusCode, snippet)
	}

	var markets MarketsResponse
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("failed to decode markets response: %w", err)
	}

	if markets.Last > 0 {
		c.since = markets.Last
	}
	return &markets, nil
}
