package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/matchpulse/odds-engine/internal/pkg/storage"
	"github.com/matchpulse/odds-engine/internal/pkg/teams"
)

// matchWindow bounds how far a venue's kickoff time may drift from ours.
const matchWindow = 12 * time.Hour

// FixtureSource is the read-only slice of the store the resolver needs.
type FixtureSource interface {
	FixturesInWindow(ctx context.Context, leagueID int64, center time.Time, window time.Duration) ([]storage.FixtureCandidate, error)
	TeamAliases(ctx context.Context, teamIDs []int64) (map[int64][]string, error)
}

// Query describes one external event to resolve against internal fixtures.
type Query struct {
	Kickoff  time.Time
	HomeTeam string
	AwayTeam string
	LeagueID int64
}

// Resolver matches venue events to fixture records by league, kickoff window
// and fuzzy team names. Stateless; every call goes to the store.
type Resolver struct {
	src FixtureSource
}

func New(src FixtureSource) *Resolver {
	return &Resolver{src: src}
}

// Resolve returns the fixture id for the query, or ok=false when nothing in
// the window matches both team names. When several candidates satisfy the name
// predicate the one closest to the query kickoff wins.
func (r *Resolver) Resolve(ctx context.Context, q Query) (int64, bool, error) {
	if q.LeagueID == 0 {
		return 0, false, nil
	}

	candidates, err := r.src.FixturesInWindow(ctx, q.LeagueID, q.Kickoff, matchWindow)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load fixture candidates: %w", err)
	}
	if len(candidates) == 0 {
		return 0, false, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := absDuration(candidates[i].Kickoff.Sub(q.Kickoff))
		dj := absDuration(candidates[j].Kickoff.Sub(q.Kickoff))
		return di < dj
	})

	teamIDs := make([]int64, 0, len(candidates)*2)
	seen := make(map[int64]bool)
	for _, c := range candidates {
		for _, id := range []int64{c.HomeTeamID, c.AwayTeamID} {
			if id != 0 && !seen[id] {
				seen[id] = true
				teamIDs = append(teamIDs, id)
			}
		}
	}
	aliases, err := r.src.TeamAliases(ctx, teamIDs)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load team aliases: %w", err)
	}

	for _, c := range candidates {
		homeNames := candidateNames(c.HomeTeamName, aliases[c.HomeTeamID])
		awayNames := candidateNames(c.AwayTeamName, aliases[c.AwayTeamID])
		if anyMatches(q.HomeTeam, homeNames) && anyMatches(q.AwayTeam, awayNames) {
			return c.ID, true, nil
		}
	}
	return 0, false, nil
}

func candidateNames(canonical string, aliases []string) []string {
	names := make([]string, 0, len(aliases)+1)
	if canonical != "" {
		names = append(names, canonical)
	}
	names = append(names, aliases...)
	return names
}

func anyMatches(query string, names []string) bool {
	for _, name := range names {
		if teams.Matches(query, name) {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
