package sensor

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/calewis/yahoo-matchup/external/yahoo"
	"github.com/calewis/yahoo-matchup/internal/config"
	"github.com/calewis/yahoo-matchup/internal/matchup"
	"github.com/calewis/yahoo-matchup/internal/platform/cache"
	"github.com/calewis/yahoo-matchup/internal/platform/logging"
)

// Sensor states that are not a score.
const (
	StateError     = "error"
	StateNoMatchup = "no_matchup"
	StateUnknown   = "unknown"
)

// FantasyAPI is the slice of the API client the entity consumes.
type FantasyAPI interface {
	FetchLeagueSettings(ctx context.Context, leagueKey string) (matchup.LeagueSettings, error)
	FetchStatCategories(ctx context.Context, gameKey string) ([]matchup.StatCategory, error)
	FetchCurrentWeek(ctx context.Context, leagueKey string) (int, error)
	FetchMatchup(ctx context.Context, leagueKey, teamKey string, week int) (matchup.Snapshot, error)
	FetchRoster(ctx context.Context, teamKey string, week int) ([]matchup.Player, error)
	FetchPlayerStats(ctx context.Context, leagueKey string, playerKeys []string, week int, modifiers map[string]float64) (map[string]matchup.WeekStats, error)
}

// Snapshot is the entity's externally visible state after one update.
type Snapshot struct {
	EntityID   string
	State      string
	Attributes map[string]any
	UpdatedAt  time.Time
}

// Entity polls one matchup and turns the provider's view of it into a
// state string plus attributes. The state is the tracked team's score,
// or one of the non-score states when the matchup cannot be resolved.
//
// Failures split two ways: credential and configuration problems abort
// the cycle with the error state, while roster and stat fetch problems
// only degrade attributes so the score survives partial outages.
type Entity struct {
	cfg        config.Matchup
	api        FantasyAPI
	settings   *cache.Store
	categories *cache.Store
	logger     *logging.Logger

	minInterval time.Duration

	mu         sync.RWMutex
	lastUpdate time.Time
	snapshot   Snapshot

	now func() time.Time
}

type EntityConfig struct {
	Matchup           config.Matchup
	API               FantasyAPI
	SettingsCache     *cache.Store
	StatCategoryCache *cache.Store
	MinUpdateInterval time.Duration
	Logger            *logging.Logger
}

func NewEntity(cfg EntityConfig) *Entity {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	settings := cfg.SettingsCache
	if settings == nil {
		settings = cache.NewStore()
	}
	categories := cfg.StatCategoryCache
	if categories == nil {
		categories = cache.NewStore()
	}

	e := &Entity{
		cfg:         cfg.Matchup,
		api:         cfg.API,
		settings:    settings,
		categories:  categories,
		logger:      logger,
		minInterval: cfg.MinUpdateInterval,
		now:         time.Now,
	}
	e.snapshot = Snapshot{
		EntityID:   e.EntityID(),
		State:      StateUnknown,
		Attributes: map[string]any{"friendly_name": e.friendlyName()},
	}
	return e
}

// EntityID derives a stable identifier from the team key, for example
// sensor.yahoo_matchup_449_l_12345_t_3.
func (e *Entity) EntityID() string {
	key := strings.NewReplacer(".", "_", "-", "_").Replace(e.cfg.TeamKey())
	return "sensor.yahoo_matchup_" + key
}

func (e *Entity) friendlyName() string {
	return fmt.Sprintf("Yahoo Matchup %s", e.cfg.TeamKey())
}

// Current returns the last published snapshot without triggering work.
func (e *Entity) Current() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Update runs one polling cycle. Calls inside the minimum interval
// return the cached snapshot untouched. A panic anywhere in the cycle
// is converted into the error state rather than killing the poller.
func (e *Entity) Update(ctx context.Context) (snap Snapshot) {
	e.mu.Lock()
	if !e.lastUpdate.IsZero() && e.now().Sub(e.lastUpdate) < e.minInterval {
		snap = e.snapshot
		e.mu.Unlock()
		return snap
	}
	e.mu.Unlock()

	ctx, span := startSensorSpan(ctx, "sensor.update "+e.cfg.TeamKey())
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "matchup update panicked", "entity_id", e.EntityID(), "panic", r)
			snap = e.publish(StateError, map[string]any{"reason": fmt.Sprintf("internal error: %v", r)})
		}
	}()

	state, attrs := e.updateCycle(ctx)
	return e.publish(state, attrs)
}

func (e *Entity) publish(state string, attrs map[string]any) Snapshot {
	if attrs == nil {
		attrs = make(map[string]any, 2)
	}
	attrs["friendly_name"] = e.friendlyName()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUpdate = e.now()
	e.snapshot = Snapshot{
		EntityID:   e.EntityID(),
		State:      state,
		Attributes: attrs,
		UpdatedAt:  e.lastUpdate,
	}
	return e.snapshot
}

func (e *Entity) updateCycle(ctx context.Context) (string, map[string]any) {
	degraded := make([]string, 0, 2)

	settings, err := e.loadSettings(ctx)
	if err != nil {
		if isAbortError(err) {
			return StateError, map[string]any{"reason": err.Error()}
		}
		e.logger.WarnContext(ctx, "league settings unavailable, continuing without scoring config",
			"league_key", e.cfg.LeagueKey(), "error", err)
		degraded = append(degraded, "league_settings")
	}

	// The week anchors every fetch that follows, so not knowing it
	// aborts the cycle rather than guessing.
	week := settings.CurrentWeek
	if week == 0 {
		week, err = e.api.FetchCurrentWeek(ctx, e.cfg.LeagueKey())
		if err != nil {
			return StateError, map[string]any{"reason": "could not determine current week: " + err.Error()}
		}
	}

	snap, err := e.api.FetchMatchup(ctx, e.cfg.LeagueKey(), e.cfg.TeamKey(), week)
	if err != nil {
		if stderrors.Is(err, yahoo.ErrParseDegraded) {
			return StateNoMatchup, map[string]any{
				"reason": fmt.Sprintf("no matchup for week %d", week),
				"week":   week,
			}
		}
		return StateError, map[string]any{"reason": err.Error()}
	}

	e.hydrateRosters(ctx, &snap, settings.Modifiers, &degraded)

	return e.render(ctx, snap, settings, degraded)
}

func (e *Entity) loadSettings(ctx context.Context) (matchup.LeagueSettings, error) {
	value, err := e.settings.GetOrLoad(ctx, e.cfg.LeagueKey(), func(ctx context.Context) (any, error) {
		return e.api.FetchLeagueSettings(ctx, e.cfg.LeagueKey())
	})
	if err != nil {
		return matchup.LeagueSettings{}, err
	}
	settings, ok := value.(matchup.LeagueSettings)
	if !ok {
		return matchup.LeagueSettings{}, fmt.Errorf("unexpected settings cache payload %T", value)
	}
	return settings, nil
}

func (e *Entity) loadStatCategories(ctx context.Context) ([]matchup.StatCategory, error) {
	value, err := e.categories.GetOrLoad(ctx, e.cfg.GameKey, func(ctx context.Context) (any, error) {
		return e.api.FetchStatCategories(ctx, e.cfg.GameKey)
	})
	if err != nil {
		return nil, err
	}
	categories, ok := value.([]matchup.StatCategory)
	if !ok {
		return nil, fmt.Errorf("unexpected stat category cache payload %T", value)
	}
	return categories, nil
}

// hydrateRosters attaches rosters and per-player points to both sides.
// Any failure here degrades attributes but never the score.
func (e *Entity) hydrateRosters(ctx context.Context, snap *matchup.Snapshot, modifiers map[string]float64, degraded *[]string) {
	for _, side := range []*matchup.TeamSide{&snap.Us, &snap.Opponent} {
		roster, err := e.api.FetchRoster(ctx, side.TeamKey, snap.Week)
		if err != nil {
			e.logger.WarnContext(ctx, "roster unavailable",
				"team_key", side.TeamKey, "week", snap.Week, "error", err)
			*degraded = append(*degraded, "roster:"+side.TeamKey)
			continue
		}

		keys := make([]string, 0, len(roster))
		for _, p := range roster {
			keys = append(keys, p.Key)
		}
		stats, err := e.api.FetchPlayerStats(ctx, e.cfg.LeagueKey(), keys, snap.Week, modifiers)
		if err != nil {
			e.logger.WarnContext(ctx, "player stats unavailable, using roster totals",
				"team_key", side.TeamKey, "week", snap.Week, "error", err)
			*degraded = append(*degraded, "player_stats:"+side.TeamKey)
		} else {
			matchup.ApplyStats(roster, stats)
		}
		side.Roster = roster
	}
}

func (e *Entity) render(ctx context.Context, snap matchup.Snapshot, settings matchup.LeagueSettings, degraded []string) (string, map[string]any) {
	attrs := map[string]any{
		"week":           snap.Week,
		"matchup_status": snap.Status,
		"winner":         string(snap.Outcome()),
		"is_playoffs":    snap.IsPlayoffs,
		"team_key":       snap.Us.TeamKey,
		"team_name":      snap.Us.Name,
		"opponent_key":   snap.Opponent.TeamKey,
		"opponent_name":  snap.Opponent.Name,
	}
	if snap.Us.ManagerName != "" {
		attrs["our_manager"] = snap.Us.ManagerName
	}
	if snap.Opponent.ManagerName != "" {
		attrs["opponent_manager"] = snap.Opponent.ManagerName
	}
	if snap.Us.LogoURL != "" {
		attrs["entity_picture"] = snap.Us.LogoURL
	}

	state := StateUnknown
	if score, ok := snap.Us.Score(); ok {
		state = formatScore(score)
		attrs["our_score"] = score
	}
	if score, ok := snap.Opponent.Score(); ok {
		attrs["opponent_score"] = score
	}
	if diff, ok := snap.ScoreDifferential(); ok {
		attrs["score_differential"] = diff
	}
	if snap.Us.ProjectedPoints > 0 {
		attrs["our_projected_points"] = snap.Us.ProjectedPoints
	}
	if snap.Opponent.ProjectedPoints > 0 {
		attrs["opponent_projected_points"] = snap.Opponent.ProjectedPoints
	}
	if snap.Us.WinProbability != nil {
		attrs["win_probability"] = *snap.Us.WinProbability
	}

	categories, err := e.loadStatCategories(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "stat categories unavailable", "game_key", e.cfg.GameKey, "error", err)
		degraded = append(degraded, "stat_categories")
	} else {
		rendered := make([]map[string]any, 0, len(categories))
		for _, category := range categories {
			rendered = append(rendered, map[string]any{
				"stat_id":      category.ID,
				"name":         category.Name,
				"display_name": category.DisplayName,
			})
		}
		attrs["available_stat_categories"] = rendered
	}

	e.renderRoster(attrs, "our", snap.Us, categories)
	e.renderRoster(attrs, "opponent", snap.Opponent, categories)

	if settings.Name != "" {
		league := map[string]any{
			"name":               settings.Name,
			"scoring_type":       settings.ScoringType,
			"current_week":       settings.CurrentWeek,
			"start_week":         settings.StartWeek,
			"end_week":           settings.EndWeek,
			"playoff_start_week": settings.PlayoffStart,
			"num_teams":          settings.NumTeams,
		}
		if len(settings.RosterPositions) > 0 {
			league["roster_positions"] = settings.RosterPositions
		}
		attrs["league_settings"] = league
	}

	if len(degraded) > 0 {
		attrs["degraded"] = degraded
	}
	return state, attrs
}

func (e *Entity) renderRoster(attrs map[string]any, prefix string, side matchup.TeamSide, categories []matchup.StatCategory) {
	if len(side.Roster) == 0 {
		return
	}

	starters := side.Starters()
	bench := side.Bench()
	attrs[prefix+"_starters"] = renderPlayers(starters, categories)
	attrs[prefix+"_bench"] = renderPlayers(bench, categories)
	attrs[prefix+"_starter_count"] = len(starters)
	attrs[prefix+"_bench_count"] = len(bench)
	attrs[prefix+"_starter_points"] = side.StarterPoints()
	attrs[prefix+"_bench_points"] = side.BenchPoints()
}

func renderPlayers(players []matchup.Player, categories []matchup.StatCategory) []map[string]any {
	out := make([]map[string]any, 0, len(players))
	for _, p := range players {
		entry := map[string]any{
			"name":     p.Name,
			"position": p.Position,
			"points":   p.Points,
		}
		if p.EligiblePosition != "" {
			entry["eligible_position"] = p.EligiblePosition
		}
		if p.Team != "" {
			entry["team"] = p.Team
		}
		if stats := matchup.NamedStats(p.Stats, categories); stats != nil {
			entry["stats"] = stats
		}
		out = append(out, entry)
	}
	return out
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func isAbortError(err error) bool {
	return stderrors.Is(err, yahoo.ErrAuthentication) || stderrors.Is(err, yahoo.ErrConfiguration)
}
