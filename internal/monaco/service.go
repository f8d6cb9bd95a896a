package monaco

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/matchpulse/odds-engine/internal/notify"
	"github.com/matchpulse/odds-engine/internal/pkg/config"
	"github.com/matchpulse/odds-engine/internal/pkg/models"
	"github.com/matchpulse/odds-engine/internal/pkg/ratelimit"
	"github.com/matchpulse/odds-engine/internal/pkg/storage"
	"github.com/matchpulse/odds-engine/internal/resolver"
)

const (
	initialFetchRetries = 3
	writeTaskTimeout    = 15 * time.Second
)

// leagueSource is the store slice the service needs to map venue event groups
// onto internal leagues.
type leagueSource interface {
	LeagueByMonacoEventGroup(ctx context.Context, eventGroupID string) (int64, bool, error)
}

// Service is the push venue adapter: it keeps a websocket fed into the
// batcher, rebuilds mappings from periodic full refetches, and reconciles
// order book state into the odds store through per-fixture serialized writes.
type Service struct {
	cfg      *config.MonacoConfig
	log      *slog.Logger
	store    leagueSource
	resolver *resolver.Resolver
	notifier *notify.Notifier
	monitor  *notify.Monitor

	session    *SessionManager
	client     *Client
	stream     *StreamClient
	mapper     *MarketMapper
	books      *OrderBookEngine
	batcher    *Batcher
	serializer *UpdateSerializer
	rec        *Reconciler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(cfg *config.MonacoConfig, store *storage.Store, res *resolver.Resolver, notifier *notify.Notifier, monitor *notify.Monitor, log *slog.Logger) *Service {
	apiLimiter := ratelimit.NewLimiter(cfg.APIRateLimit, time.Second)
	subLimiter := ratelimit.NewLimiter(cfg.SubRateLimit, time.Minute)

	session := NewSessionManager(cfg, apiLimiter, log)
	s := &Service{
		cfg:        cfg,
		log:        log,
		store:      store,
		resolver:   res,
		notifier:   notifier,
		monitor:    monitor,
		session:    session,
		client:     NewClient(cfg, session, apiLimiter),
		mapper:     NewMarketMapper(),
		books:      NewOrderBookEngine(),
		serializer: NewUpdateSerializer(),
		rec:        NewReconciler(store, log),
	}
	s.batcher = NewBatcher(log, map[string]Handler{
		MsgMarketPriceUpdate:  s.handlePriceUpdate,
		MsgMarketStatusUpdate: s.handleStatusUpdate,
	})
	s.stream = NewStreamClient(cfg, session, subLimiter, log, s.batcher.Enqueue)
	return s
}

// Start authenticates, performs the initial market fetch, then launches the
// stream and the refetch loop. A failed initial fetch after retries is fatal;
// everything later degrades and retries instead.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.session.Authenticate(s.ctx); err != nil {
		return fmt.Errorf("monaco authentication failed: %w", err)
	}

	var err error
	for attempt := 0; attempt < initialFetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-s.ctx.Done():
				return s.ctx.Err()
			case <-time.After(time.Second << uint(attempt)):
			}
		}
		if err = s.refetch(s.ctx); err == nil {
			break
		}
		s.log.Warn("initial market fetch failed", "attempt", attempt+1, "error", err)
	}
	if err != nil {
		s.notifier.Alert("monaco:init", "odds-engine: monaco initial market fetch failed: "+err.Error())
		return fmt.Errorf("initial market fetch failed after %d attempts: %w", initialFetchRetries, err)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.stream.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.refetchLoop(s.ctx)
	}()

	s.log.Info("monaco service started", "refetchInterval", s.cfg.RefetchInterval)
	return nil
}

// Stop tears the adapter down in dependency order: no new input, drain the
// batcher, finish serialized writes, stop token upkeep.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.batcher.Stop()
	s.serializer.Stop()
	s.session.Stop()
	s.log.Info("monaco service stopped")
}

func (s *Service) refetchLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RefetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refetch(ctx); err != nil {
				s.log.Error("market refetch failed", "error", err)
				s.notifier.Alert("monaco:refetch", "odds-engine: monaco market refetch failed: "+err.Error())
			}
		}
	}
}

func (s *Service) refetch(ctx context.Context) error {
	page, err := s.client.FetchAllMarkets(ctx)
	if err != nil {
		return err
	}
	s.applySnapshot(ctx, page)
	return nil
}

// applySnapshot rebuilds the mapping set from a full market snapshot and
// reseeds the order books. Only fixtures whose market structure changed get a
// database resync, which bounds write amplification from routine refetches.
func (s *Service) applySnapshot(ctx context.Context, page *MarketsPage) {
	leagueCache := make(map[string]int64)
	mappings := BuildMappings(page, func(ev Event) (int64, bool) {
		return s.resolveEvent(ctx, ev, leagueCache)
	}, s.log)
	changed := s.mapper.Replace(mappings)
	s.log.Info("market snapshot applied",
		"markets", len(page.Markets), "mapped", len(mappings), "changedFixtures", len(changed))

	s.seedBooks(page, mappings)

	for _, fixtureID := range changed {
		fixtureID := fixtureID
		s.serializer.Submit(fixtureID, func() {
			s.writeFixture(fixtureID)
		})
	}
	s.monitor.Touch(BookieName)
}

// resolveEvent maps a venue event onto an internal fixture: event group to
// league, "Home v Away" to team names, kickoff within the match window.
func (s *Service) resolveEvent(ctx context.Context, ev Event, leagueCache map[string]int64) (int64, bool) {
	groupID := first(ev.EventGroup.IDs)
	if groupID == "" {
		return 0, false
	}
	leagueID, ok := leagueCache[groupID]
	if !ok {
		id, found, err := s.store.LeagueByMonacoEventGroup(ctx, groupID)
		if err != nil {
			s.log.Error("league lookup failed", "eventGroup", groupID, "error", err)
			return 0, false
		}
		if !found {
			leagueCache[groupID] = 0
			return 0, false
		}
		leagueID = id
		leagueCache[groupID] = id
	}
	if leagueID == 0 {
		return 0, false
	}

	home, away, ok := splitEventName(ev.Name)
	if !ok {
		return 0, false
	}
	kickoff, err := time.Parse(time.RFC3339, ev.ExpectedStartTime)
	if err != nil {
		return 0, false
	}

	fixtureID, ok, err := s.resolver.Resolve(ctx, resolver.Query{
		Kickoff:  kickoff,
		HomeTeam: home,
		AwayTeam: away,
		LeagueID: leagueID,
	})
	if err != nil {
		s.log.Error("fixture resolution failed", "event", ev.Name, "error", err)
		return 0, false
	}
	if !ok {
		s.log.Debug("no fixture for event", "event", ev.Name, "league", leagueID)
	}
	return fixtureID, ok
}

func splitEventName(name string) (string, string, bool) {
	parts := strings.SplitN(name, " v ", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// seedBooks aggregates snapshot prices per (fixture, market type) before
// seeding, since several lined markets share one book.
func (s *Service) seedBooks(page *MarketsPage, mappings map[string]Mapping) {
	type seedKey struct {
		fixtureID int64
		mt        string
	}
	grouped := make(map[seedKey][]Price)
	for _, m := range page.Markets {
		mapping, ok := mappings[mappingKey(first(m.Event.IDs), m.ID)]
		if !ok {
			continue
		}
		key := seedKey{mapping.FixtureID, mapping.MarketType}
		grouped[key] = append(grouped[key], m.Prices...)
	}
	for key, prices := range grouped {
		s.books.Seed(key.fixtureID, key.mt, prices)
	}
}

// writeFixture runs on the fixture's serializer chain: ensure the row exists
// with current structure, then flush every market type's book.
func (s *Service) writeFixture(fixtureID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTaskTimeout)
	defer cancel()

	if err := s.rec.EnsureRecord(ctx, fixtureID, s.mapper); err != nil {
		s.log.Error("failed to ensure odds record", "fixtureId", fixtureID, "error", err)
		return
	}
	for _, mt := range models.MarketTypes {
		mappings := s.mapper.FixtureMappings(fixtureID, mt)
		if len(mappings) == 0 {
			continue
		}
		book := s.books.Snapshot(fixtureID, mt)
		if book == nil {
			continue
		}
		if err := s.rec.ApplyBook(ctx, fixtureID, mt, book, mappings); err != nil {
			s.log.Error("failed to write book snapshot",
				"fixtureId", fixtureID, "marketType", mt, "error", err)
		}
	}
}

func (s *Service) handlePriceUpdate(msg StreamMessage) error {
	mapping, ok := s.mapper.Get(msg.EventID, msg.MarketID)
	if !ok {
		// Market outside the mapped set, likely a league or type we skip.
		return nil
	}

	book := s.books.Apply(mapping.FixtureID, mapping.MarketType, msg.Prices)
	mappings := s.mapper.FixtureMappings(mapping.FixtureID, mapping.MarketType)

	s.serializer.Submit(mapping.FixtureID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTaskTimeout)
		defer cancel()
		if err := s.rec.ApplyBook(ctx, mapping.FixtureID, mapping.MarketType, book, mappings); err != nil {
			s.log.Error("failed to apply price update",
				"fixtureId", mapping.FixtureID, "marketId", msg.MarketID, "error", err)
		}
	})
	s.monitor.Touch(BookieName)
	return nil
}

func (s *Service) handleStatusUpdate(msg StreamMessage) error {
	mapping, ok := s.mapper.Get(msg.EventID, msg.MarketID)
	if !ok {
		return nil
	}
	if msg.Status == "Open" && msg.InPlayStatus != "InPlay" {
		return nil
	}

	mappings := s.mapper.FixtureMappings(mapping.FixtureID, mapping.MarketType)
	s.serializer.Submit(mapping.FixtureID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTaskTimeout)
		defer cancel()
		if err := s.rec.ZeroMarket(ctx, mapping.FixtureID, mapping.MarketType, mappings); err != nil {
			s.log.Error("failed to zero closed market",
				"fixtureId", mapping.FixtureID, "marketId", msg.MarketID, "error", err)
		}
	})

	if msg.InPlayStatus == "InPlay" {
		// Kickoff: the whole fixture leaves pre-match scope.
		s.books.Remove(mapping.FixtureID)
	}
	s.log.Info("market left pre-match scope",
		"fixtureId", mapping.FixtureID, "marketId", msg.MarketID,
		"status", msg.Status, "inPlayStatus", msg.InPlayStatus)
	return nil
}
