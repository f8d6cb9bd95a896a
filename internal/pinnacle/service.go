package pinnacle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/matchpulse/odds-engine/internal/notify"
	"github.com/matchpulse/odds-engine/internal/pkg/config"
	"github.com/matchpulse/odds-engine/internal/pkg/storage"
	"github.com/matchpulse/odds-engine/internal/resolver"
)

// cutoffLayout is the feed's naive datetime format, always UTC.
const cutoffLayout = "2006-01-02T15:04:05"

// Service is the poll venue adapter. Every cycle it fetches the incremental
// markets feed, filters to mapped leagues, resolves events to fixtures and
// folds open periods into the odds store. Closed markets that were previously
// stored get a zeroed snapshot.
type Service struct {
	cfg      *config.PinnacleConfig
	log      *slog.Logger
	store    *storage.Store
	resolver *resolver.Resolver
	notifier *notify.Notifier
	monitor  *notify.Monitor

	client *Client
	rec    *Reconciler

	// venue league id -> internal league id, loaded once at start
	leagues map[int64]int64
	// venue event id -> fixture id, grows as events resolve
	eventCache map[int64]int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(cfg *config.PinnacleConfig, store *storage.Store, res *resolver.Resolver, notifier *notify.Notifier, monitor *notify.Monitor, log *slog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		log:        log,
		store:      store,
		resolver:   res,
		notifier:   notifier,
		monitor:    monitor,
		client:     NewClient(cfg),
		rec:        NewReconciler(store, log),
		eventCache: make(map[int64]int64),
	}
}

// Start loads the league mapping table and launches the poll loop.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	leagues, err := s.store.PinnacleLeagueMappings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pinnacle league mappings: %w", err)
	}
	s.leagues = leagues
	s.log.Info("pinnacle service started", "mappedLeagues", len(leagues), "pollInterval", s.cfg.PollInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()
	return nil
}

func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("pinnacle service stopped")
}

func (s *Service) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				// Timeouts and transient API errors cost one cycle; the
				// staleness monitor escalates if they persist.
				s.log.Warn("poll cycle failed", "error", err)
			}
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) error {
	markets, err := s.client.FetchMarkets(ctx)
	if err != nil {
		return err
	}
	s.monitor.Touch(BookieName)
	if len(markets.Events) == 0 {
		return nil
	}

	events := make([]Event, 0, len(markets.Events))
	eventIDs := make([]int64, 0, len(markets.Events))
	for _, ev := range markets.Events {
		if _, ok := s.leagues[ev.LeagueID]; !ok {
			continue
		}
		events = append(events, ev)
		eventIDs = append(eventIDs, ev.EventID)
	}
	if len(events) == 0 {
		return nil
	}

	existing, err := s.loadExistingRows(ctx, eventIDs)
	if err != nil {
		return err
	}

	updated := 0
	for _, ev := range events {
		if ev.Periods == nil || ev.Periods.Num0 == nil {
			continue
		}
		period := ev.Periods.Num0
		row := existing[ev.EventID]

		if !marketOpen(period, time.Now()) {
			// Zero out only markets we have history for.
			if row == nil {
				continue
			}
			if ok, err := s.rec.Apply(ctx, row.FixtureID, ev.EventID, zeroPeriod(period), row); err != nil {
				s.log.Error("failed to zero closed market", "eventId", ev.EventID, "error", err)
			} else if ok {
				updated++
			}
			continue
		}

		fixtureID, ok := s.fixtureFor(ctx, ev, row)
		if !ok {
			continue
		}
		if ok, err := s.rec.Apply(ctx, fixtureID, ev.EventID, period, row); err != nil {
			s.log.Error("failed to apply odds", "eventId", ev.EventID, "fixtureId", fixtureID, "error", err)
		} else if ok {
			updated++
		}
	}

	if updated > 0 {
		s.log.Debug("poll cycle complete", "events", len(events), "updated", updated)
	}
	return nil
}

// loadExistingRows fetches stored rows for the cycle's events in one query
// and refreshes the event -> fixture cache from them.
func (s *Service) loadExistingRows(ctx context.Context, eventIDs []int64) (map[int64]*storage.OddsRow, error) {
	rows, err := s.store.GetOddsRowsByBookieIDs(ctx, BookieName, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing odds rows: %w", err)
	}
	out := make(map[int64]*storage.OddsRow, len(rows))
	for i := range rows {
		row := &rows[i]
		out[row.BookieID] = row
		s.eventCache[row.BookieID] = row.FixtureID
	}
	return out, nil
}

// fixtureFor resolves the internal fixture for an event: stored row first,
// then the cache, then a full resolver pass.
func (s *Service) fixtureFor(ctx context.Context, ev Event, row *storage.OddsRow) (int64, bool) {
	if row != nil {
		return row.FixtureID, true
	}
	if id, ok := s.eventCache[ev.EventID]; ok {
		return id, true
	}

	kickoff, err := time.Parse(time.RFC3339, ev.Starts)
	if err != nil {
		s.log.Debug("unparseable event start", "eventId", ev.EventID, "starts", ev.Starts)
		return 0, false
	}
	fixtureID, ok, err := s.resolver.Resolve(ctx, resolver.Query{
		Kickoff:  kickoff,
		HomeTeam: ev.Home,
		AwayTeam: ev.Away,
		LeagueID: s.leagues[ev.LeagueID],
	})
	if err != nil {
		s.log.Error("fixture resolution failed", "eventId", ev.EventID, "error", err)
		return 0, false
	}
	if !ok {
		s.log.Info("no matching fixture for event",
			"eventId", ev.EventID, "home", ev.Home, "away", ev.Away, "league", ev.LeagueID)
		return 0, false
	}
	s.eventCache[ev.EventID] = fixtureID
	return fixtureID, true
}

// marketOpen applies the venue's full openness predicate: period open, some
// odds present, cutoff still in the future and at least one meta flag open.
func marketOpen(p *Period, now time.Time) bool {
	if p.PeriodStatus != periodStatusOpen {
		return false
	}
	if p.MoneyLine == nil && len(p.Spreads) == 0 && len(p.Totals) == 0 {
		return false
	}

	cutoff, err := time.ParseInLocation(cutoffLayout, p.Cutoff, time.UTC)
	if err != nil || !cutoff.After(now) {
		return false
	}

	if p.Meta == nil {
		return false
	}
	return p.Meta.OpenMoneyLine || p.Meta.OpenSpreads || p.Meta.OpenTotals
}
