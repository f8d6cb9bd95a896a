package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/matchpulse/odds-engine/internal/pkg/storage"
)

type fakeSource struct {
	fixtures []storage.FixtureCandidate
	aliases  map[int64][]string
}

func (f *fakeSource) FixturesInWindow(_ context.Context, _ int64, center time.Time, window time.Duration) ([]storage.FixtureCandidate, error) {
	var out []storage.FixtureCandidate
	for _, fx := range f.fixtures {
		diff := fx.Kickoff.Sub(center)
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			out = append(out, fx)
		}
	}
	return out, nil
}

func (f *fakeSource) TeamAliases(_ context.Context, _ []int64) (map[int64][]string, error) {
	if f.aliases == nil {
		return map[int64][]string{}, nil
	}
	return f.aliases, nil
}

func TestResolve_MatchesFuzzyNames(t *testing.T) {
	kickoff := time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC)
	src := &fakeSource{fixtures: []storage.FixtureCandidate{
		{ID: 42, HomeTeamID: 1, AwayTeamID: 2, HomeTeamName: "Manchester United", AwayTeamName: "Liverpool", Kickoff: kickoff},
	}}
	r := New(src)

	id, ok, err := r.Resolve(context.Background(), Query{
		Kickoff: kickoff.Add(30 * time.Minute), HomeTeam: "Manchester United FC", AwayTeam: "Liverpool FC", LeagueID: 39,
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !ok || id != 42 {
		t.Errorf("Resolve() = (%d, %v), want (42, true)", id, ok)
	}
}

func TestResolve_NoMatchOutsideWindow(t *testing.T) {
	kickoff := time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC)
	src := &fakeSource{fixtures: []storage.FixtureCandidate{
		{ID: 42, HomeTeamName: "Arsenal", AwayTeamName: "Chelsea", Kickoff: kickoff.Add(13 * time.Hour)},
	}}
	r := New(src)

	_, ok, err := r.Resolve(context.Background(), Query{Kickoff: kickoff, HomeTeam: "Arsenal", AwayTeam: "Chelsea", LeagueID: 39})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if ok {
		t.Error("fixture 13h away should not match the ±12h window")
	}
}

func TestResolve_BothSidesMustMatch(t *testing.T) {
	kickoff := time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC)
	src := &fakeSource{fixtures: []storage.FixtureCandidate{
		{ID: 42, HomeTeamName: "Arsenal", AwayTeamName: "Chelsea", Kickoff: kickoff},
	}}
	r := New(src)

	_, ok, _ := r.Resolve(context.Background(), Query{Kickoff: kickoff, HomeTeam: "Arsenal", AwayTeam: "Tottenham", LeagueID: 39})
	if ok {
		t.Error("match with only one side agreeing should be rejected")
	}
}

func TestResolve_AliasesRaiseRecall(t *testing.T) {
	kickoff := time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC)
	src := &fakeSource{
		fixtures: []storage.FixtureCandidate{
			{ID: 7, HomeTeamID: 10, AwayTeamID: 11, HomeTeamName: "Wolverhampton Wanderers", AwayTeamName: "Brighton", Kickoff: kickoff},
		},
		aliases: map[int64][]string{
			10: {"Wolverhampton Wanderers", "Wolves"},
			11: {"Brighton", "Brighton & Hove Albion"},
		},
	}
	r := New(src)

	id, ok, err := r.Resolve(context.Background(), Query{Kickoff: kickoff, HomeTeam: "Wolves", AwayTeam: "Brighton and Hove Albion", LeagueID: 39})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !ok || id != 7 {
		t.Errorf("alias match failed: got (%d, %v)", id, ok)
	}
}

func TestResolve_ClosestKickoffWinsTie(t *testing.T) {
	kickoff := time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC)
	src := &fakeSource{fixtures: []storage.FixtureCandidate{
		{ID: 1, HomeTeamName: "Arsenal", AwayTeamName: "Chelsea", Kickoff: kickoff.Add(8 * time.Hour)},
		{ID: 2, HomeTeamName: "Arsenal", AwayTeamName: "Chelsea", Kickoff: kickoff.Add(time.Hour)},
	}}
	r := New(src)

	id, ok, _ := r.Resolve(context.Background(), Query{Kickoff: kickoff, HomeTeam: "Arsenal", AwayTeam: "Chelsea", LeagueID: 39})
	if !ok || id != 2 {
		t.Errorf("expected candidate closest to kickoff (2), got (%d, %v)", id, ok)
	}
}

func TestResolve_UnmappedLeague(t *testing.T) {
	r := New(&fakeSource{})
	_, ok, err := r.Resolve(context.Background(), Query{HomeTeam: "A", AwayTeam: "B", LeagueID: 0})
	if err != nil || ok {
		t.Errorf("unmapped league should be a quiet no-match, got ok=%v err=%v", ok, err)
	}
}
