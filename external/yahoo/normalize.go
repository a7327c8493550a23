package yahoo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/calewis/yahoo-matchup/internal/matchup"
	"github.com/calewis/yahoo-matchup/internal/platform/jsontree"
)

// The fantasy API renders every resource in two shapes depending on the
// endpoint: a JSON object is either a plain map, or a list of partial
// maps that must be merged, or an index keyed collection such as
// {"0": {...}, "1": {...}, "count": 2}. The helpers below flatten all
// three into ordinary maps and slices before any field access.

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func getInt(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	if v, ok := asFloat64(m[key]); ok {
		return int(v)
	}
	return 0
}

// getBool treats the provider's "1"/"0" strings and numeric flags alike.
func getBool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "1" || strings.EqualFold(v, "true")
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

func asFloat64(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// mergeFragments flattens a resource into one map. Lists are walked in
// order and nested lists recursed, so both the fragment-list shape and
// the plain map shape end up identical. Later fragments win.
func mergeFragments(v any) map[string]any {
	out := make(map[string]any, 8)
	var walk func(node any)
	walk = func(node any) {
		switch value := node.(type) {
		case map[string]any:
			for key, item := range value {
				out[key] = item
			}
		case []any:
			for _, item := range value {
				walk(item)
			}
		}
	}
	walk(v)
	return out
}

// indexedList turns {"0": a, "1": b, "count": 2} into [a, b]. Plain
// lists pass through. Anything else yields nil.
func indexedList(v any) []any {
	switch value := v.(type) {
	case []any:
		return value
	case map[string]any:
		indexes := make([]int, 0, len(value))
		for key := range value {
			idx, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		out := make([]any, 0, len(indexes))
		for _, idx := range indexes {
			out = append(out, value[strconv.Itoa(idx)])
		}
		return out
	default:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// parseLeagueSettings extracts league metadata and the scoring
// configuration from a league;settings payload.
func parseLeagueSettings(tree any) (matchup.LeagueSettings, error) {
	leagueNode, ok := jsontree.Find(tree, "league")
	if !ok {
		return matchup.LeagueSettings{}, fmt.Errorf("%w: no league node in settings payload", ErrParseDegraded)
	}
	league := mergeFragments(leagueNode)

	settings := mergeFragments(league["settings"])
	if len(settings) == 0 {
		if node, found := jsontree.Find(tree, "settings"); found {
			settings = mergeFragments(node)
		}
	}

	out := matchup.LeagueSettings{
		Name:         firstNonEmpty(getString(league, "name"), getString(settings, "name")),
		ScoringType:  firstNonEmpty(getString(settings, "scoring_type"), getString(league, "scoring_type")),
		CurrentWeek:  getInt(league, "current_week"),
		StartWeek:    getInt(league, "start_week"),
		EndWeek:      getInt(league, "end_week"),
		PlayoffStart: getInt(settings, "playoff_start_week"),
		NumTeams:     getInt(league, "num_teams"),
		Raw:          settings,
	}
	out.RosterPositions = parseRosterPositions(tree)
	out.StatCategories = parseStatCategories(tree)
	out.Modifiers = parseStatModifiers(tree)
	return out, nil
}

// parseRosterPositions maps lineup slot name to its count from league
// settings. Entries with an unparseable count are dropped.
func parseRosterPositions(tree any) map[string]int {
	node, ok := jsontree.Find(tree, "roster_positions")
	if !ok {
		return nil
	}

	out := make(map[string]int, 16)
	for _, item := range indexedList(node) {
		entry := mergeFragments(item)
		position := asMap(entry["roster_position"])
		if position == nil {
			position = entry
		}
		name := getString(position, "position")
		if name == "" {
			continue
		}
		if count, ok := asFloat64(position["count"]); ok {
			out[name] = int(count)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseStatCategories pulls the stat category list out of any payload
// that carries one, either under league settings or a game resource.
func parseStatCategories(tree any) []matchup.StatCategory {
	node, ok := jsontree.Find(tree, "stat_categories")
	if !ok {
		return nil
	}

	statsNode, ok := jsontree.Find(node, "stats")
	if !ok {
		statsNode = node
	}

	out := make([]matchup.StatCategory, 0, 16)
	for _, item := range indexedList(statsNode) {
		entry := mergeFragments(item)
		stat := asMap(entry["stat"])
		if stat == nil {
			stat = entry
		}
		id := getString(stat, "stat_id")
		if id == "" {
			continue
		}
		abbreviation := firstNonEmpty(getString(stat, "abbr"), getString(stat, "abbreviation"))
		out = append(out, matchup.StatCategory{
			ID:           id,
			Name:         getString(stat, "name"),
			Abbreviation: abbreviation,
			DisplayName:  firstNonEmpty(abbreviation, getString(stat, "display_name"), getString(stat, "name")),
			SortOrder:    getString(stat, "sort_order"),
			PositionType: getString(stat, "position_type"),
			Enabled:      stat["enabled"] == nil || getBool(stat, "enabled"),
		})
	}
	return out
}

// parseStatModifiers maps stat id to its point value from league
// settings. Categories without a modifier are worth nothing.
func parseStatModifiers(tree any) map[string]float64 {
	node, ok := jsontree.Find(tree, "stat_modifiers")
	if !ok {
		return nil
	}
	statsNode, ok := jsontree.Find(node, "stats")
	if !ok {
		statsNode = node
	}

	out := make(map[string]float64, 16)
	for _, item := range indexedList(statsNode) {
		entry := mergeFragments(item)
		stat := asMap(entry["stat"])
		if stat == nil {
			stat = entry
		}
		id := getString(stat, "stat_id")
		if id == "" {
			continue
		}
		if value, ok := asFloat64(stat["value"]); ok {
			out[id] = value
		}
	}
	return out
}

// resolvePlayerName follows the provider's name shapes in order: the
// full name, assembled first and last, or a bare string.
func resolvePlayerName(v any) string {
	switch value := v.(type) {
	case string:
		return firstNonEmpty(value, "Unknown")
	case map[string]any:
		if full := getString(value, "full"); full != "" {
			return full
		}
		first := getString(value, "first")
		last := getString(value, "last")
		if combined := strings.TrimSpace(first + " " + last); combined != "" {
			return combined
		}
	}
	return "Unknown"
}

// resolveSelectedPosition handles the three shapes selected_position
// arrives in: a bare string, an object, or a fragment list.
func resolveSelectedPosition(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case map[string]any, []any:
		merged := mergeFragments(value)
		return getString(merged, "position")
	default:
		return ""
	}
}

// parseRosterPlayers extracts players from a roster payload. A player is
// kept only when both a key and a name could be resolved.
func parseRosterPlayers(tree any) []matchup.Player {
	playersNode, ok := jsontree.Find(tree, "players")
	if !ok {
		return nil
	}

	out := make([]matchup.Player, 0, 16)
	for _, item := range indexedList(playersNode) {
		entry := mergeFragments(item)
		player := mergeFragments(entry["player"])
		if len(player) == 0 {
			player = entry
		}

		key := firstNonEmpty(getString(player, "player_key"), getString(player, "player_id"))
		if key == "" || player["name"] == nil {
			continue
		}
		name := resolvePlayerName(player["name"])

		points := 0.0
		if pointsNode, found := jsontree.Find(player, "player_points"); found {
			merged := mergeFragments(pointsNode)
			if total, ok := asFloat64(merged["total"]); ok {
				points = total
			}
		}

		out = append(out, matchup.Player{
			Key:              key,
			Name:             name,
			Position:         resolveSelectedPosition(player["selected_position"]),
			EligiblePosition: firstNonEmpty(getString(player, "display_position"), getString(player, "primary_position")),
			Team:             getString(player, "editorial_team_abbr"),
			Points:           points,
			Stats:            parseStatLine(player),
		})
	}
	return out
}

// parsePlayerStatLines maps player key to their raw stat lines from a
// players;player_keys stats payload.
func parsePlayerStatLines(tree any) map[string]map[string]string {
	playersNode, ok := jsontree.Find(tree, "players")
	if !ok {
		return nil
	}

	out := make(map[string]map[string]string, 32)
	for _, item := range indexedList(playersNode) {
		entry := mergeFragments(item)
		player := mergeFragments(entry["player"])
		if len(player) == 0 {
			player = entry
		}
		key := firstNonEmpty(getString(player, "player_key"), getString(player, "player_id"))
		if key == "" {
			continue
		}
		line := parseStatLine(player)
		if line == nil {
			line = map[string]string{}
		}
		out[key] = line
	}
	return out
}

// parseStatLine reads a player node's raw stat values keyed by stat id.
// The provider's own point total joins the line under stat id "0".
func parseStatLine(player map[string]any) map[string]string {
	line := make(map[string]string, 16)
	if statsNode, found := jsontree.Find(player, "player_stats"); found {
		merged := mergeFragments(statsNode)
		for _, statItem := range indexedList(merged["stats"]) {
			statEntry := mergeFragments(statItem)
			stat := asMap(statEntry["stat"])
			if stat == nil {
				stat = statEntry
			}
			id := getString(stat, "stat_id")
			if id == "" {
				continue
			}
			line[id] = getString(stat, "value")
		}
	}
	if pointsNode, found := jsontree.Find(player, "player_points"); found {
		merged := mergeFragments(pointsNode)
		if total := getString(merged, "total"); total != "" {
			line[matchup.TotalPointsStatID] = total
		}
	}
	if len(line) == 0 {
		return nil
	}
	return line
}

// parseTeamSide flattens one team node from a scoreboard payload.
func parseTeamSide(node any) (matchup.TeamSide, bool) {
	team := mergeFragments(node)
	if inner, ok := team["team"]; ok {
		team = mergeFragments(inner)
	}

	key := getString(team, "team_key")
	if key == "" {
		return matchup.TeamSide{}, false
	}

	side := matchup.TeamSide{
		TeamKey: key,
		Name:    firstNonEmpty(getString(team, "name"), key),
	}

	if managersNode, found := jsontree.Find(team, "managers"); found {
		if nickname, ok := jsontree.FindString(managersNode, "nickname"); ok {
			side.ManagerName = nickname
		}
	}
	if logosNode, found := jsontree.Find(team, "team_logos"); found {
		if url, ok := jsontree.FindString(logosNode, "url"); ok {
			side.LogoURL = url
		}
	}

	if pointsNode, found := jsontree.Find(team, "team_points"); found {
		merged := mergeFragments(pointsNode)
		if total, ok := asFloat64(merged["total"]); ok {
			side.Points = total
			side.HasPoints = true
		}
	}
	if projectedNode, found := jsontree.Find(team, "team_projected_points"); found {
		merged := mergeFragments(projectedNode)
		if total, ok := asFloat64(merged["total"]); ok {
			side.ProjectedPoints = total
		}
	}
	if probNode, found := jsontree.Find(team, "win_probability"); found {
		if prob, ok := asFloat64(probNode); ok {
			side.WinProbability = &prob
		}
	}

	return side, true
}

// findMatchupsNode locates the matchup collection wherever the payload
// nests it: top level, under the scoreboard, or under the league.
func findMatchupsNode(tree any) (any, bool) {
	if node, ok := jsontree.Find(tree, "matchups"); ok {
		return node, true
	}
	scoreboard, ok := jsontree.Find(tree, "scoreboard")
	if !ok {
		return nil, false
	}
	return jsontree.Find(scoreboard, "matchups")
}

// parseMatchup finds the matchup containing teamKey in a scoreboard
// payload. Matchups with fewer than two teams or without that team are
// skipped.
func parseMatchup(tree any, teamKey string) (matchup.Snapshot, bool) {
	matchupsNode, ok := findMatchupsNode(tree)
	if !ok {
		return matchup.Snapshot{}, false
	}

	for _, item := range indexedList(matchupsNode) {
		entry := mergeFragments(item)
		if inner, found := entry["matchup"]; found {
			entry = mergeFragments(inner)
		}

		teamsNode, found := jsontree.Find(entry, "teams")
		if !found {
			continue
		}
		sides := make([]matchup.TeamSide, 0, 2)
		for _, teamItem := range indexedList(teamsNode) {
			if side, ok := parseTeamSide(teamItem); ok {
				sides = append(sides, side)
			}
		}
		if len(sides) < 2 {
			continue
		}

		var us, opponent *matchup.TeamSide
		for i := range sides {
			if sides[i].TeamKey == teamKey {
				us = &sides[i]
			} else if opponent == nil {
				opponent = &sides[i]
			}
		}
		if us == nil || opponent == nil {
			continue
		}

		return matchup.Snapshot{
			Week:          getInt(entry, "week"),
			Status:        getString(entry, "status"),
			IsTied:        getBool(entry, "is_tied"),
			IsPlayoffs:    getBool(entry, "is_playoffs"),
			WinnerTeamKey: getString(entry, "winner_team_key"),
			Us:            *us,
			Opponent:      *opponent,
		}, true
	}
	return matchup.Snapshot{}, false
}

// parseCurrentWeek reads the league's current week from any league
// payload.
func parseCurrentWeek(tree any) (int, bool) {
	leagueNode, ok := jsontree.Find(tree, "league")
	if !ok {
		return 0, false
	}
	league := mergeFragments(leagueNode)
	if week := getInt(league, "current_week"); week > 0 {
		return week, true
	}
	if node, found := jsontree.Find(tree, "current_week"); found {
		if week, ok := asFloat64(node); ok && week > 0 {
			return int(week), true
		}
	}
	return 0, false
}
