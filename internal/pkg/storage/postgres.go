package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/matchpulse/odds-engine/internal/pkg/config"
)

// Store wraps the shared Postgres schema. The odds table is bootstrapped here;
// fixture/team/league tables belong to the reference-data subsystem and are
// only read.
type Store struct {
	db *sql.DB
}

func Open(cfg *config.PostgresConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("Postgres store initialized")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS football_odds (
		fixture_id BIGINT NOT NULL,
		bookie_id BIGINT NOT NULL DEFAULT 0,
		bookie VARCHAR(64) NOT NULL,
		decimals INT NOT NULL DEFAULT 3,
		odds_x12 JSONB,
		odds_ah JSONB,
		odds_ou JSONB,
		lines JSONB,
		ids JSONB,
		max_stakes JSONB,
		latest_t JSONB,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		UNIQUE(fixture_id, bookie)
	);

	CREATE INDEX IF NOT EXISTS idx_football_odds_bookie_id ON football_odds(bookie_id);
	CREATE INDEX IF NOT EXISTS idx_football_odds_updated_at ON football_odds(updated_at DESC);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// OddsRow mirrors one (fixture, bookie) row. JSON columns stay raw; decoding
// happens at the reconciler where the shapes are known.
type OddsRow struct {
	FixtureID int64
	BookieID  int64
	Bookie    string
	Decimals  int
	OddsX12   []byte
	OddsAH    []byte
	OddsOU    []byte
	Lines     []byte
	IDs       []byte
	MaxStakes []byte
	LatestT   []byte
}

// GetOddsRow fetches the row for one fixture+bookie pair, nil when absent.
func (s *Store) GetOddsRow(ctx context.Context, fixtureID int64, bookie string) (*OddsRow, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT fixture_id, bookie_id, bookie, decimals,
	       odds_x12, odds_ah, odds_ou, lines, ids, max_stakes, latest_t
	FROM football_odds
	WHERE fixture_id = $1 AND bookie = $2
	`, fixtureID, bookie)

	var r OddsRow
	err := row.Scan(&r.FixtureID, &r.BookieID, &r.Bookie, &r.Decimals,
		&r.OddsX12, &r.OddsAH, &r.OddsOU, &r.Lines, &r.IDs, &r.MaxStakes, &r.LatestT)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query odds row: %w", err)
	}
	return &r, nil
}

// GetOddsRowsByBookieIDs fetches rows by the venue-side event id stored in
// bookie_id, used by the poll venue to pre-resolve fixtures in one query.
func (s *Store) GetOddsRowsByBookieIDs(ctx context.Context, bookie string, bookieIDs []int64) ([]OddsRow, error) {
	if len(bookieIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT fixture_id, bookie_id, bookie, decimals,
	       odds_x12, odds_ah, odds_ou, lines, ids, max_stakes, latest_t
	FROM football_odds
	WHERE bookie = $1 AND bookie_id = ANY($2)
	`, bookie, pq.Array(bookieIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query odds rows: %w", err)
	}
	defer rows.Close()

	var out []OddsRow
	for rows.Next() {
		var r OddsRow
		if err := rows.Scan(&r.FixtureID, &r.BookieID, &r.Bookie, &r.Decimals,
			&r.OddsX12, &r.OddsAH, &r.OddsOU, &r.Lines, &r.IDs, &r.MaxStakes, &r.LatestT); err != nil {
			return nil, fmt.Errorf("failed to scan odds row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertOddsRow creates the seed row for a fixture+bookie pair.
func (s *Store) InsertOddsRow(ctx context.Context, r *OddsRow) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO football_odds (
		fixture_id, bookie_id, bookie, decimals,
		odds_x12, odds_ah, odds_ou, lines, ids, max_stakes, latest_t, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	ON CONFLICT (fixture_id, bookie) DO NOTHING
	`, r.FixtureID, r.BookieID, r.Bookie, r.Decimals,
		nullable(r.OddsX12), nullable(r.OddsAH), nullable(r.OddsOU),
		nullable(r.Lines), nullable(r.IDs), nullable(r.MaxStakes), nullable(r.LatestT))
	if err != nil {
		return fmt.Errorf("failed to insert odds row: %w", err)
	}
	return nil
}

// UpsertOddsRow writes a full row, replacing column values on conflict. Used
// by the poll venue, whose writes always carry the complete merged state.
func (s *Store) UpsertOddsRow(ctx context.Context, r *OddsRow) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO football_odds (
		fixture_id, bookie_id, bookie, decimals,
		odds_x12, odds_ah, odds_ou, lines, ids, max_stakes, latest_t, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	ON CONFLICT (fixture_id, bookie) DO UPDATE SET
		bookie_id = EXCLUDED.bookie_id,
		odds_x12 = EXCLUDED.odds_x12,
		odds_ah = EXCLUDED.odds_ah,
		odds_ou = EXCLUDED.odds_ou,
		lines = EXCLUDED.lines,
		ids = EXCLUDED.ids,
		max_stakes = EXCLUDED.max_stakes,
		latest_t = EXCLUDED.latest_t,
		updated_at = NOW()
	`, r.FixtureID, r.BookieID, r.Bookie, r.Decimals,
		nullable(r.OddsX12), nullable(r.OddsAH), nullable(r.OddsOU),
		nullable(r.Lines), nullable(r.IDs), nullable(r.MaxStakes), nullable(r.LatestT))
	if err != nil {
		return fmt.Errorf("failed to upsert odds row: %w", err)
	}
	return nil
}

// allowed odds column names for dynamic updates
var oddsColumns = map[string]bool{
	"bookie_id": true, "decimals": true,
	"odds_x12": true, "odds_ah": true, "odds_ou": true,
	"lines": true, "ids": true, "max_stakes": true, "latest_t": true,
}

// UpdateOddsColumns issues an UPDATE touching only the given columns plus
// updated_at. Column names are validated against the schema before being
// spliced into the statement.
func (s *Store) UpdateOddsColumns(ctx context.Context, fixtureID int64, bookie string, cols map[string]any) error {
	if len(cols) == 0 {
		return nil
	}

	names := make([]string, 0, len(cols))
	for name := range cols {
		if !oddsColumns[name] {
			return fmt.Errorf("unknown odds column %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var sets []string
	var args []any
	for i, name := range names {
		sets = append(sets, fmt.Sprintf("%s = $%d", name, i+1))
		args = append(args, cols[name])
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, fixtureID, bookie)

	query := fmt.Sprintf(`UPDATE football_odds SET %s WHERE fixture_id = $%d AND bookie = $%d`,
		strings.Join(sets, ", "), len(names)+1, len(names)+2)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update odds columns: %w", err)
	}
	return nil
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
