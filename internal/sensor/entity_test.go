package sensor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/calewis/yahoo-matchup/external/yahoo"
	"github.com/calewis/yahoo-matchup/internal/config"
	"github.com/calewis/yahoo-matchup/internal/matchup"
	"github.com/calewis/yahoo-matchup/internal/platform/logging"
)

type fakeAPI struct {
	settings      matchup.LeagueSettings
	settingsErr   error
	categories    []matchup.StatCategory
	categoriesErr error
	week          int
	weekErr       error
	snap          matchup.Snapshot
	snapErr       error
	rosters       map[string][]matchup.Player
	rosterErr     error
	stats         map[string]matchup.WeekStats
	statsErr      error

	panicOnMatchup bool
	calls          map[string]int
}

func (f *fakeAPI) count(name string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeAPI) FetchLeagueSettings(ctx context.Context, leagueKey string) (matchup.LeagueSettings, error) {
	f.count("settings")
	return f.settings, f.settingsErr
}

func (f *fakeAPI) FetchStatCategories(ctx context.Context, gameKey string) ([]matchup.StatCategory, error) {
	f.count("categories")
	return f.categories, f.categoriesErr
}

func (f *fakeAPI) FetchCurrentWeek(ctx context.Context, leagueKey string) (int, error) {
	f.count("week")
	return f.week, f.weekErr
}

func (f *fakeAPI) FetchMatchup(ctx context.Context, leagueKey, teamKey string, week int) (matchup.Snapshot, error) {
	f.count("matchup")
	if f.panicOnMatchup {
		panic("scoreboard shape not understood")
	}
	return f.snap, f.snapErr
}

func (f *fakeAPI) FetchRoster(ctx context.Context, teamKey string, week int) ([]matchup.Player, error) {
	f.count("roster")
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return f.rosters[teamKey], nil
}

func (f *fakeAPI) FetchPlayerStats(ctx context.Context, leagueKey string, playerKeys []string, week int, modifiers map[string]float64) (map[string]matchup.WeekStats, error) {
	f.count("stats")
	return f.stats, f.statsErr
}

func testMatchup() config.Matchup {
	return config.Matchup{GameKey: "449", LeagueID: "12345", TeamID: "3"}
}

func healthyAPI() *fakeAPI {
	return &fakeAPI{
		settings: matchup.LeagueSettings{
			Name:        "Office League",
			ScoringType: "headpoint",
			CurrentWeek: 5,
			Modifiers:   map[string]float64{"4": 0.04},
		},
		categories: []matchup.StatCategory{
			{ID: "4", Name: "Passing Yards", DisplayName: "Pass Yds"},
		},
		snap: matchup.Snapshot{
			Week:   5,
			Status: "midevent",
			Us:     matchup.TeamSide{TeamKey: "449.l.12345.t.3", Name: "Mean Machine", Points: 88.5, HasPoints: true},
			Opponent: matchup.TeamSide{
				TeamKey: "449.l.12345.t.7", Name: "Average Joes", Points: 75.0, HasPoints: true,
			},
		},
		rosters: map[string][]matchup.Player{
			"449.l.12345.t.3": {
				{Key: "449.p.100", Name: "Patrick Mahomes", Position: "QB"},
				{Key: "449.p.101", Name: "Travis Kelce", Position: "BN"},
			},
			"449.l.12345.t.7": {
				{Key: "449.p.200", Name: "Josh Allen", Position: "QB"},
			},
		},
		stats: map[string]matchup.WeekStats{
			"449.p.100": {Points: 21.38, Line: map[string]string{"4": "534.5"}},
			"449.p.101": {Points: 9.9},
			"449.p.200": {Points: 18.0},
		},
	}
}

func newTestEntity(api FantasyAPI, minInterval time.Duration) *Entity {
	return NewEntity(EntityConfig{
		Matchup:           testMatchup(),
		API:               api,
		MinUpdateInterval: minInterval,
		Logger:            logging.NewNop(),
	})
}

func TestEntity_EntityID(t *testing.T) {
	t.Parallel()

	e := newTestEntity(healthyAPI(), 0)
	if got := e.EntityID(); got != "sensor.yahoo_matchup_449_l_12345_t_3" {
		t.Fatalf("EntityID = %q", got)
	}
}

func TestEntity_Update_FullCycle(t *testing.T) {
	t.Parallel()

	api := healthyAPI()
	e := newTestEntity(api, 0)

	snap := e.Update(context.Background())
	if snap.State != "88.5" {
		t.Fatalf("State = %q, want 88.5", snap.State)
	}

	attrs := snap.Attributes
	if attrs["winner"] != "tbd" {
		t.Fatalf("winner = %v", attrs["winner"])
	}
	if attrs["opponent_name"] != "Average Joes" {
		t.Fatalf("opponent_name = %v", attrs["opponent_name"])
	}
	if attrs["score_differential"] != 13.5 {
		t.Fatalf("score_differential = %v", attrs["score_differential"])
	}
	if attrs["our_starter_count"] != 1 || attrs["our_bench_count"] != 1 {
		t.Fatalf("our roster counts = %v %v", attrs["our_starter_count"], attrs["our_bench_count"])
	}
	if attrs["our_starter_points"] != 21.38 {
		t.Fatalf("our_starter_points = %v", attrs["our_starter_points"])
	}
	if attrs["our_bench_points"] != 9.9 {
		t.Fatalf("our_bench_points = %v", attrs["our_bench_points"])
	}
	starters, ok := attrs["our_starters"].([]map[string]any)
	if !ok || len(starters) != 1 {
		t.Fatalf("our_starters = %v", attrs["our_starters"])
	}
	stats, ok := starters[0]["stats"].(map[string]string)
	if !ok || stats["Pass Yds"] != "534.5" {
		t.Fatalf("starter stats = %v, want display named line", starters[0]["stats"])
	}
	if _, ok := attrs["degraded"]; ok {
		t.Fatalf("degraded = %v, want absent", attrs["degraded"])
	}
	if _, ok := attrs["league_settings"]; !ok {
		t.Fatal("league_settings attribute missing")
	}
	if _, ok := attrs["available_stat_categories"]; !ok {
		t.Fatal("available_stat_categories attribute missing")
	}
	// Week came from cached settings, so no standalone week fetch.
	if api.calls["week"] != 0 {
		t.Fatalf("week calls = %d, want 0", api.calls["week"])
	}
}

func TestEntity_Update_MinIntervalGate(t *testing.T) {
	t.Parallel()

	api := healthyAPI()
	e := newTestEntity(api, time.Hour)

	first := e.Update(context.Background())
	second := e.Update(context.Background())

	if api.calls["matchup"] != 1 {
		t.Fatalf("matchup calls = %d, want 1", api.calls["matchup"])
	}
	if first.UpdatedAt != second.UpdatedAt {
		t.Fatal("second update inside the interval should return the cached snapshot")
	}
}

func TestEntity_Update_SettingsCachedAcrossCycles(t *testing.T) {
	t.Parallel()

	api := healthyAPI()
	e := newTestEntity(api, 0)

	e.Update(context.Background())
	e.Update(context.Background())

	if api.calls["settings"] != 1 {
		t.Fatalf("settings calls = %d, want 1 (cached)", api.calls["settings"])
	}
	if api.calls["categories"] != 1 {
		t.Fatalf("categories calls = %d, want 1 (cached)", api.calls["categories"])
	}
	if api.calls["matchup"] != 2 {
		t.Fatalf("matchup calls = %d, want 2", api.calls["matchup"])
	}
}

func TestEntity_Update_NoMatchup(t *testing.T) {
	t.Parallel()

	api := healthyAPI()
	api.snapErr = fmt.Errorf("team_key=x: %w", yahoo.ErrParseDegraded)
	e := newTestEntity(api, 0)

	snap := e.Update(context.Background())
	if snap.State != StateNoMatchup {
		t.Fatalf("State = %q, want %q", snap.State, StateNoMatchup)
	}
	if snap.Attributes["reason"] == nil {
		t.Fatal("reason attribute missing")
	}
}

func TestEntity_Update_AuthFailureAborts(t *testing.T) {
	t.Parallel()

	api := healthyAPI()
	api.settingsErr = fmt.Errorf("league settings: %w", yahoo.ErrAuthentication)
	e := newTestEntity(api, 0)

	snap := e.Update(context.Background())
	if snap.State != StateError {
		t.Fatalf("State = %q, want %q", snap.State, StateError)
	}
	if api.calls["matchup"] != 0 {
		t.Fatalf("matchup calls = %d, want 0 after auth abort", api.calls["matchup"])
	}
}

func TestEntity_Update_RosterFailureDegrades(t *testing.T) {
	t.Parallel()

	api := healthyAPI()
	api.rosterErr = fmt.Errorf("roster: %w", yahoo.ErrRequest)
	e := newTestEntity(api, 0)

	snap := e.Update(context.Background())
	if snap.State != "88.5" {
		t.Fatalf("State = %q, want score despite roster failure", snap.State)
	}
	degraded, ok := snap.Attributes["degraded"].([]string)
	if !ok || len(degraded) == 0 {
		t.Fatalf("degraded = %v", snap.Attributes["degraded"])
	}
}

func TestEntity_Update_SettingsFailureDegrades(t *testing.T) {
	t.Parallel()

	api := healthyAPI()
	api.settingsErr = fmt.Errorf("settings: %w", yahoo.ErrRequest)
	api.week = 5
	e := newTestEntity(api, 0)

	snap := e.Update(context.Background())
	if snap.State != "88.5" {
		t.Fatalf("State = %q, want score despite settings failure", snap.State)
	}
	if api.calls["week"] != 1 {
		t.Fatalf("week calls = %d, want fallback week fetch", api.calls["week"])
	}
}

func TestEntity_Update_UnknownWeekAborts(t *testing.T) {
	t.Parallel()

	api := healthyAPI()
	api.settings.CurrentWeek = 0
	api.weekErr = fmt.Errorf("league: %w", yahoo.ErrRequest)
	e := newTestEntity(api, 0)

	snap := e.Update(context.Background())
	if snap.State != StateError {
		t.Fatalf("State = %q, want %q without a resolvable week", snap.State, StateError)
	}
	if api.calls["matchup"] != 0 {
		t.Fatalf("matchup calls = %d, want 0", api.calls["matchup"])
	}
}

func TestEntity_Update_PanicRecovers(t *testing.T) {
	t.Parallel()

	api := healthyAPI()
	api.panicOnMatchup = true
	e := newTestEntity(api, 0)

	snap := e.Update(context.Background())
	if snap.State != StateError {
		t.Fatalf("State = %q, want %q", snap.State, StateError)
	}
}

func TestEntity_Update_ScoreFallsBackToStarterSum(t *testing.T) {
	t.Parallel()

	api := healthyAPI()
	api.snap.Us.HasPoints = false
	api.snap.Us.Points = 0
	e := newTestEntity(api, 0)

	snap := e.Update(context.Background())
	// Starter points: Mahomes 21.38.
	if snap.State != "21.38" {
		t.Fatalf("State = %q, want 21.38", snap.State)
	}
}
