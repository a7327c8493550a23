package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calewis/yahoo-matchup/internal/matchup"
)

const (
	// playerBatchSize is the provider's cap on player_keys per request.
	playerBatchSize = 25

	// playerBatchDelay spaces consecutive batch requests to stay under
	// the provider's rate limits.
	playerBatchDelay = 500 * time.Millisecond
)

// FetchLeagueSettings retrieves the league's scoring configuration and
// metadata. Callers cache the result for the life of the process since
// league settings do not change mid-season.
func (c *Client) FetchLeagueSettings(ctx context.Context, leagueKey string) (matchup.LeagueSettings, error) {
	tree, err := c.GetJSON(ctx, fmt.Sprintf("/league/%s/settings", leagueKey), nil)
	if err != nil {
		return matchup.LeagueSettings{}, fmt.Errorf("fetch league settings league_key=%s: %w", leagueKey, err)
	}

	settings, err := parseLeagueSettings(tree)
	if err != nil {
		return matchup.LeagueSettings{}, fmt.Errorf("league_key=%s: %w", leagueKey, err)
	}
	return settings, nil
}

// FetchStatCategories retrieves the stat categories for a game, the
// league independent catalogue of everything the sport can score.
func (c *Client) FetchStatCategories(ctx context.Context, gameKey string) ([]matchup.StatCategory, error) {
	tree, err := c.GetJSON(ctx, fmt.Sprintf("/game/%s/stat_categories", gameKey), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch stat categories game_key=%s: %w", gameKey, err)
	}
	return parseStatCategories(tree), nil
}

// FetchCurrentWeek reads the league's current week.
func (c *Client) FetchCurrentWeek(ctx context.Context, leagueKey string) (int, error) {
	tree, err := c.GetJSON(ctx, fmt.Sprintf("/league/%s", leagueKey), nil)
	if err != nil {
		return 0, fmt.Errorf("fetch league league_key=%s: %w", leagueKey, err)
	}

	week, ok := parseCurrentWeek(tree)
	if !ok {
		return 0, fmt.Errorf("%w: no current_week in league payload league_key=%s", ErrParseDegraded, leagueKey)
	}
	return week, nil
}

// FetchMatchup retrieves the scoreboard for a week and returns the
// matchup containing teamKey. Week 0 means the provider's current week.
func (c *Client) FetchMatchup(ctx context.Context, leagueKey, teamKey string, week int) (matchup.Snapshot, error) {
	path := fmt.Sprintf("/league/%s/scoreboard", leagueKey)
	if week > 0 {
		path = fmt.Sprintf("%s;week=%d", path, week)
	}

	tree, err := c.GetJSON(ctx, path, nil)
	if err != nil {
		return matchup.Snapshot{}, fmt.Errorf("fetch scoreboard league_key=%s week=%d: %w", leagueKey, week, err)
	}

	snap, ok := parseMatchup(tree, teamKey)
	if !ok {
		return matchup.Snapshot{}, fmt.Errorf("%w: no matchup for team_key=%s in scoreboard week=%d", ErrParseDegraded, teamKey, week)
	}
	if snap.Week == 0 {
		snap.Week = week
	}
	return snap, nil
}

// FetchRoster retrieves a team's roster with weekly slots. The provider
// serves rosters under several path shapes depending on game and
// season, so each variant is tried until one yields players.
func (c *Client) FetchRoster(ctx context.Context, teamKey string, week int) ([]matchup.Player, error) {
	weekPart := ""
	if week > 0 {
		weekPart = fmt.Sprintf(";week=%d", week)
	}
	paths := []string{
		fmt.Sprintf("/team/%s/roster%s/players", teamKey, weekPart),
		fmt.Sprintf("/team/%s/roster%s", teamKey, weekPart),
		fmt.Sprintf("/team/%s/roster", teamKey),
	}

	var lastErr error
	for _, path := range paths {
		tree, err := c.GetJSON(ctx, path, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if players := parseRosterPlayers(tree); len(players) > 0 {
			return players, nil
		}
		lastErr = fmt.Errorf("%w: no players in roster payload path=%s", ErrParseDegraded, path)
	}

	return nil, fmt.Errorf("fetch roster team_key=%s week=%d: %w", teamKey, week, lastErr)
}

// FetchPlayerStats retrieves weekly stat lines for the given players
// and scores them with the league's modifiers. Requests are batched at
// the provider's cap with a small delay between batches.
func (c *Client) FetchPlayerStats(ctx context.Context, leagueKey string, playerKeys []string, week int, modifiers map[string]float64) (map[string]matchup.WeekStats, error) {
	out := make(map[string]matchup.WeekStats, len(playerKeys))

	for start := 0; start < len(playerKeys); start += playerBatchSize {
		end := start + playerBatchSize
		if end > len(playerKeys) {
			end = len(playerKeys)
		}
		batch := playerKeys[start:end]

		if start > 0 {
			if err := c.sleep(ctx, playerBatchDelay); err != nil {
				return nil, err
			}
		}

		path := fmt.Sprintf(
			"/league/%s/players;player_keys=%s/stats;type=week;week=%d",
			leagueKey, strings.Join(batch, ","), week,
		)
		tree, err := c.GetJSON(ctx, path, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch player stats league_key=%s batch=%d: %w", leagueKey, start/playerBatchSize, err)
		}

		for key, line := range parsePlayerStatLines(tree) {
			out[key] = matchup.WeekStats{Points: scorePlayer(line, modifiers), Line: line}
		}
	}

	return out, nil
}
