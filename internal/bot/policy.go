package bot

import (
	"daifugo/internal/app"
	"daifugo/internal/domain"
)

// GreedyPolicy always sheds the weakest legal option.
type GreedyPolicy struct{}

// Choose implements app.CPUPolicy.
func (GreedyPolicy) Choose(view app.CPUView, options [][]domain.Card) int {
	return weakestOption(options, view.Revolution, false)
}

// CautiousPolicy sheds weak cards first and keeps its top cards for the
// endgame. It spends them once it can finish with them or an opponent is
// close to going out.
type CautiousPolicy struct {
	ThreatThreshold int
}

// Choose implements app.CPUPolicy.
func (c CautiousPolicy) Choose(view app.CPUView, options [][]domain.Card) int {
	leading := len(view.FieldCards) == 0
	if i := weakestOption(options, view.Revolution, true); i >= 0 {
		return i
	}
	// Only premium options remain.
	i := weakestOption(options, view.Revolution, false)
	if leading || len(options[i]) == view.CardsToFinish || c.threatened(view) {
		return i
	}
	return -1
}

func (c CautiousPolicy) threatened(view app.CPUView) bool {
	for _, n := range view.OpponentCounts {
		if n > 0 && n <= c.ThreatThreshold {
			return true
		}
	}
	return false
}

// weakestOption returns the index of the option with the lowest effective
// strength, or -1. With skipPremium, options holding a premium card are ignored.
func weakestOption(options [][]domain.Card, revolution, skipPremium bool) int {
	best, bestKey := -1, 0
	for i, option := range options {
		if skipPremium && isPremium(option, revolution) {
			continue
		}
		key := effectiveStrength(option, revolution)
		if best < 0 || key < bestKey {
			best, bestKey = i, key
		}
	}
	return best
}

// effectiveStrength orders plays from weakest to strongest under the current polarity.
func effectiveStrength(cards []domain.Card, revolution bool) int {
	s := domain.PlayStrength(cards)
	if revolution {
		return -s
	}
	return s
}

// isPremium reports whether a play holds one of the hardest cards to beat:
// jokers and 2s normally, 3s during a revolution.
func isPremium(cards []domain.Card, revolution bool) bool {
	if revolution {
		return domain.ContainsRank(cards, domain.RankThree)
	}
	return domain.ContainsJoker(cards) || domain.ContainsRank(cards, domain.RankTwo)
}
