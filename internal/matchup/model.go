package matchup

import "math"

// Outcome describes who is winning a head to head matchup from the
// tracked team's point of view.
type Outcome string

const (
	OutcomeUs       Outcome = "us"
	OutcomeOpponent Outcome = "opponent"
	OutcomeTie      Outcome = "tie"
	OutcomeTBD      Outcome = "tbd"
	OutcomeUnknown  Outcome = "unknown"
)

// TotalPointsStatID is the stat id Yahoo uses for its own fantasy point
// total. It rides along in stat lines as a reference value and scores a
// player only when the league has no modifiers to compute from.
const TotalPointsStatID = "0"

// benchSlots are roster slot codes that do not contribute to the team
// score: bench, injured reserve, disabled list, not active, out.
var benchSlots = map[string]struct{}{
	"BN":  {},
	"BN*": {},
	"IR":  {},
	"DL":  {},
	"NA":  {},
	"O":   {},
}

// IsBenchSlot reports whether a selected position code is a non scoring
// slot. Unknown codes count as starters.
func IsBenchSlot(position string) bool {
	_, ok := benchSlots[position]
	return ok
}

// Player is one rostered athlete with their slot for the current week.
// Position is the assigned lineup slot; EligiblePosition is the
// position Yahoo lists the player under. Stats maps stat id to the raw
// reported value for the week.
type Player struct {
	Key              string
	Name             string
	Position         string
	EligiblePosition string
	Team             string
	Points           float64
	Stats            map[string]string
}

func (p Player) IsStarter() bool {
	return !IsBenchSlot(p.Position)
}

// WeekStats is one player's raw stat line for a week plus the fantasy
// points computed from it.
type WeekStats struct {
	Points float64
	Line   map[string]string
}

// ApplyStats attaches fetched weekly stats to a roster in place.
// Players without an entry keep the points the roster payload carried.
func ApplyStats(roster []Player, stats map[string]WeekStats) {
	for i := range roster {
		ws, ok := stats[roster[i].Key]
		if !ok {
			continue
		}
		roster[i].Points = ws.Points
		if len(ws.Line) > 0 {
			roster[i].Stats = ws.Line
		}
	}
}

// TeamSide is one team's half of a matchup.
type TeamSide struct {
	TeamKey         string
	Name            string
	ManagerName     string
	LogoURL         string
	Points          float64
	HasPoints       bool
	ProjectedPoints float64
	WinProbability  *float64
	Roster          []Player
}

// Starters returns the scoring portion of the roster.
func (t TeamSide) Starters() []Player {
	out := make([]Player, 0, len(t.Roster))
	for _, p := range t.Roster {
		if p.IsStarter() {
			out = append(out, p)
		}
	}
	return out
}

// Bench returns the non scoring portion of the roster.
func (t TeamSide) Bench() []Player {
	out := make([]Player, 0, len(t.Roster))
	for _, p := range t.Roster {
		if !p.IsStarter() {
			out = append(out, p)
		}
	}
	return out
}

// StarterPoints sums points for the scoring slots.
func (t TeamSide) StarterPoints() float64 {
	var total float64
	for _, p := range t.Roster {
		if p.IsStarter() {
			total += p.Points
		}
	}
	return round2(total)
}

// BenchPoints sums points for the non scoring slots.
func (t TeamSide) BenchPoints() float64 {
	var total float64
	for _, p := range t.Roster {
		if !p.IsStarter() {
			total += p.Points
		}
	}
	return round2(total)
}

// Score prefers the official matchup score and falls back to the sum of
// starter points when the API has not published one.
func (t TeamSide) Score() (float64, bool) {
	if t.HasPoints {
		return t.Points, true
	}
	if len(t.Roster) > 0 {
		return t.StarterPoints(), true
	}
	return 0, false
}

// Snapshot is the resolved state of the tracked team's matchup for one
// polling cycle.
type Snapshot struct {
	Week          int
	Status        string
	IsTied        bool
	IsPlayoffs    bool
	WinnerTeamKey string
	Us            TeamSide
	Opponent      TeamSide
}

// Outcome resolves the matchup winner. A declared winner key wins over
// everything, a tie flag comes next, and an undecided matchup is "tbd".
func (s Snapshot) Outcome() Outcome {
	if s.WinnerTeamKey != "" {
		switch s.WinnerTeamKey {
		case s.Us.TeamKey:
			return OutcomeUs
		case s.Opponent.TeamKey:
			return OutcomeOpponent
		default:
			return OutcomeUnknown
		}
	}
	if s.IsTied {
		return OutcomeTie
	}
	return OutcomeTBD
}

// ScoreDifferential is our score minus the opponent's. The boolean is
// false when either side has no usable score yet.
func (s Snapshot) ScoreDifferential() (float64, bool) {
	us, okUs := s.Us.Score()
	op, okOp := s.Opponent.Score()
	if !okUs || !okOp {
		return 0, false
	}
	return round2(us - op), true
}

// StatCategory is one scoring category from the league's stat settings.
// DisplayName prefers the abbreviation when Yahoo publishes one.
type StatCategory struct {
	ID           string
	Name         string
	Abbreviation string
	DisplayName  string
	SortOrder    string
	PositionType string
	Enabled      bool
}

// NamedStats converts a stat id keyed line into a display named map
// using the given categories. Ids without a category keep the raw id as
// the key so no reported value is dropped.
func NamedStats(line map[string]string, categories []StatCategory) map[string]string {
	if len(line) == 0 {
		return nil
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		if c.DisplayName != "" {
			names[c.ID] = c.DisplayName
		}
	}
	out := make(map[string]string, len(line))
	for id, value := range line {
		key := id
		if name, ok := names[id]; ok {
			key = name
		}
		out[key] = value
	}
	return out
}

// LeagueSettings holds the subset of league configuration the sensor
// exposes as attributes, plus the raw settings for anything else.
type LeagueSettings struct {
	Name            string
	ScoringType     string
	CurrentWeek     int
	StartWeek       int
	EndWeek         int
	PlayoffStart    int
	NumTeams        int
	RosterPositions map[string]int
	StatCategories  []StatCategory
	Modifiers       map[string]float64
	Raw             map[string]any
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
