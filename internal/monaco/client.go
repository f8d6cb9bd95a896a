package monaco

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matchpulse/odds-engine/internal/pkg/config"
	"github.com/matchpulse/odds-engine/internal/pkg/ratelimit"
)

// pageSize is the markets page size. A short page terminates pagination.
const pageSize = 2000

// Market type ids requested from the venue. Everything else is out of scope
// for the odds tables.
var requestedMarketTypes = []string{
	"FOOTBALL_FULL_TIME_RESULT",
	"FOOTBALL_FULL_TIME_RESULT_HANDICAP",
	"FOOTBALL_OVER_UNDER_TOTAL_GOALS",
}

// Client is the venue's REST surface: the paginated markets snapshot used at
// startup and on the periodic refetch.
type Client struct {
	baseURL    string
	session    *SessionManager
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

func NewClient(cfg *config.MonacoConfig, session *SessionManager, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		session:    session,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
	}
}

// FetchAllMarkets pages through the markets endpoint until a short page and
// returns the combined pre-match snapshot.
func (c *Client) FetchAllMarkets(ctx context.Context) (*MarketsPage, error) {
	var all MarketsPage
	for page := 0; ; page++ {
		p, err := c.fetchMarketsPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch markets page %d: %w", page, err)
		}
		all.Markets = append(all.Markets, p.Markets...)
		all.Events = append(all.Events, p.Events...)
		if len(p.Markets) < pageSize {
			break
		}
	}
	return &all, nil
}

func (c *Client) fetchMarketsPage(ctx context.Context, page int) (*MarketsPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("marketTypeIds", strings.Join(requestedMarketTypes, ","))
	q.Set("inPlayStatuses", "PrePlay,NotApplicable")
	q.Set("statuses", "Initializing,Open,Locked,Closed")
	q.Set("size", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build markets request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.session.AccessToken())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("markets request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("markets request returned %d: %s", resp.StatusCode, snippet)
	}

	var p MarketsPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode markets page: %w", err)
	}
	return &p, nil
}
