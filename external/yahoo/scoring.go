package yahoo

import (
	"math"

	"github.com/calewis/yahoo-matchup/internal/matchup"
)

// scorePlayer turns a raw stat line into fantasy points by multiplying
// each stat value by the league's modifier for that category. Pairs
// where either side fails to parse are skipped rather than failing the
// player. The provider's own total (stat id "0") stays in the line as a
// reference value and is used only when no modifiers are available.
func scorePlayer(line map[string]string, modifiers map[string]float64) float64 {
	if len(modifiers) == 0 {
		if raw, ok := line[matchup.TotalPointsStatID]; ok {
			if total, parsed := asFloat64(raw); parsed {
				return roundPoints(total)
			}
		}
		return 0
	}

	var total float64
	for statID, raw := range line {
		if statID == matchup.TotalPointsStatID {
			continue
		}
		modifier, ok := modifiers[statID]
		if !ok {
			continue
		}
		value, ok := asFloat64(raw)
		if !ok {
			continue
		}
		total += value * modifier
	}
	return roundPoints(total)
}

func roundPoints(v float64) float64 {
	return math.Round(v*100) / 100
}
