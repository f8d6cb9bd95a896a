package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// FixtureCandidate is the subset of a fixture row the resolver needs.
type FixtureCandidate struct {
	ID           int64
	HomeTeamID   int64
	AwayTeamID   int64
	HomeTeamName string
	AwayTeamName string
	Kickoff      time.Time
}

// FixturesInWindow returns not-yet-started fixtures of a league within ±window
// of the given kickoff time.
func (s *Store) FixturesInWindow(ctx context.Context, leagueID int64, center time.Time, window time.Duration) ([]FixtureCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, COALESCE(home_team_id, 0), COALESCE(away_team_id, 0),
	       COALESCE(home_team_name, ''), COALESCE(away_team_name, ''), date
	FROM football_fixtures
	WHERE league_id = $1
	  AND date >= $2 AND date <= $3
	  AND LOWER(status_short) IN ('ns', 'tbd', 'pst')
	`, leagueID, center.Add(-window), center.Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to query fixtures: %w", err)
	}
	defer rows.Close()

	var out []FixtureCandidate
	for rows.Next() {
		var f FixtureCandidate
		if err := rows.Scan(&f.ID, &f.HomeTeamID, &f.AwayTeamID, &f.HomeTeamName, &f.AwayTeamName, &f.Kickoff); err != nil {
			return nil, fmt.Errorf("failed to scan fixture: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// TeamAliases returns, per team id, the canonical name plus any stored alias
// names (the mappings JSONB array on football_teams).
func (s *Store) TeamAliases(ctx context.Context, teamIDs []int64) (map[int64][]string, error) {
	aliases := make(map[int64][]string)
	if len(teamIDs) == 0 {
		return aliases, nil
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, name, mappings
	FROM football_teams
	WHERE id = ANY($1)
	`, pq.Array(teamIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query team aliases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		var mappings []byte
		if err := rows.Scan(&id, &name, &mappings); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		names := []string{name}
		if len(mappings) > 0 {
			var extra []string
			if err := json.Unmarshal(mappings, &extra); err == nil {
				names = append(names, extra...)
			}
		}
		aliases[id] = names
	}
	return aliases, rows.Err()
}

// LeagueByMonacoEventGroup resolves the internal league id for a Monaco event
// group. The column holds a comma-separated list of group ids, so the lookup
// matches the id in any list position.
func (s *Store) LeagueByMonacoEventGroup(ctx context.Context, eventGroupID string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
	SELECT id FROM football_leagues
	WHERE monaco_event_group = $1
	   OR monaco_event_group LIKE $2
	   OR monaco_event_group LIKE $3
	   OR monaco_event_group LIKE $4
	LIMIT 1
	`, eventGroupID,
		eventGroupID+",%",
		"%,"+eventGroupID,
		"%,"+eventGroupID+",%",
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query league by event group: %w", err)
	}
	return id, true, nil
}

// PinnacleLeagueMappings loads the venue-league → internal-league table used to
// filter poll responses down to leagues we track.
func (s *Store) PinnacleLeagueMappings(ctx context.Context) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, pinnacle_league_id
	FROM football_leagues
	WHERE pinnacle_league_id IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query league mappings: %w", err)
	}
	defer rows.Close()

	mappings := make(map[int64]int64)
	for rows.Next() {
		var internal, venue int64
		if err := rows.Scan(&internal, &venue); err != nil {
			return nil, fmt.Errorf("failed to scan league mapping: %w", err)
		}
		mappings[venue] = internal
	}
	return mappings, rows.Err()
}
