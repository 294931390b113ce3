package bot

import (
	"fmt"
	"math/rand"

	"daifugo/internal/app"
)

// Level is a bot difficulty.
type Level string

const (
	LevelEasy   Level = "easy"
	LevelMedium Level = "medium"
	LevelHard   Level = "hard"
)

// DefaultThreatThreshold is the opponent hand size at which hard bots stop
// saving their top cards.
const DefaultThreatThreshold = 3

// NewPolicy creates the CPU policy for a level. An empty level is medium.
func NewPolicy(level Level, rng *rand.Rand) (app.CPUPolicy, error) {
	switch level {
	case LevelEasy:
		if rng == nil {
			return nil, fmt.Errorf("easy bots need a random source")
		}
		return app.RandomPolicy{Rng: rng}, nil
	case LevelMedium, "":
		return GreedyPolicy{}, nil
	case LevelHard:
		return CautiousPolicy{ThreatThreshold: DefaultThreatThreshold}, nil
	default:
		return nil, fmt.Errorf("unknown bot level: %q", level)
	}
}
