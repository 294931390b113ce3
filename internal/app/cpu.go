package app

import (
	"errors"
	"math/rand"

	"daifugo/internal/domain"
)

// CPUActionKind is what ExecuteCPUTurn did.
type CPUActionKind string

const (
	CPUPlay     CPUActionKind = "play"
	CPUPass     CPUActionKind = "pass"
	CPUExchange CPUActionKind = "exchange"
)

// CPUAction describes one automated move.
type CPUAction struct {
	Action   CPUActionKind `json:"action"`
	PlayerID string        `json:"playerId"`
	Cards    []domain.Card `json:"cards,omitempty"`
}

// CPUView is what a policy may inspect when choosing among options.
type CPUView struct {
	Hand           []domain.Card
	FieldCards     []domain.Card
	Revolution     bool
	OpponentCounts []int
	CardsToFinish  int
}

// CPUPolicy picks one of the legal options, or returns -1 to pass.
// Options are never empty.
type CPUPolicy interface {
	Choose(view CPUView, options [][]domain.Card) int
}

// RandomPolicy picks uniformly among the options.
type RandomPolicy struct {
	Rng *rand.Rand
}

// Choose implements CPUPolicy.
func (p RandomPolicy) Choose(_ CPUView, options [][]domain.Card) int {
	return p.Rng.Intn(len(options))
}

// ExecuteCPUTurn lets the CPU act for the current seat with the engine's
// policy. During the card exchange it submits every pending bot offer instead.
func (e *GameEngine) ExecuteCPUTurn() (CPUAction, error) {
	policy := e.policy
	if policy == nil {
		policy = RandomPolicy{Rng: e.rng}
	}
	return e.ExecuteCPUTurnWith(policy)
}

// ExecuteCPUTurnWith is ExecuteCPUTurn with an explicit policy.
func (e *GameEngine) ExecuteCPUTurnWith(policy CPUPolicy) (CPUAction, error) {
	switch e.state {
	case domain.StateCardExchange:
		return e.exchangeForBots()
	case domain.StatePlaying:
	default:
		return CPUAction{}, ErrNotPlaying
	}

	p := e.players[e.currentPlayerIndex]
	if !p.IsBot() {
		return CPUAction{}, ErrNotCPU
	}

	options := e.findPlayableCards(p)
	if len(options) == 0 {
		if _, err := e.Pass(p.ID); err != nil {
			return CPUAction{}, err
		}
		return CPUAction{Action: CPUPass, PlayerID: p.ID}, nil
	}

	choice := policy.Choose(e.cpuView(p), options)
	if choice < 0 || choice >= len(options) {
		if e.fieldCount > 0 {
			if _, err := e.Pass(p.ID); err != nil {
				return CPUAction{}, err
			}
			return CPUAction{Action: CPUPass, PlayerID: p.ID}, nil
		}
		choice = 0
	}

	cards := options[choice]
	if _, err := e.PlayCards(p.ID, cards); err != nil {
		if errors.Is(err, ErrInvariant) {
			return CPUAction{}, err
		}
		return CPUAction{}, e.invariantf("cpu option rejected for %s: %v", p.ID, err)
	}
	return CPUAction{Action: CPUPlay, PlayerID: p.ID, Cards: cards}, nil
}

// findPlayableCards lists candidate plays: every single card when leading,
// otherwise the first fieldCount cards of each rank group, kept if legal.
func (e *GameEngine) findPlayableCards(p *domain.Player) [][]domain.Card {
	var options [][]domain.Card
	if e.fieldCount == 0 {
		for _, c := range p.Cards {
			options = append(options, []domain.Card{c})
		}
		return options
	}
	for _, group := range domain.GroupByRank(p.Cards) {
		if len(group) < e.fieldCount {
			continue
		}
		candidate := append([]domain.Card(nil), group[:e.fieldCount]...)
		if e.CanPlayCards(p.ID, candidate) == nil {
			options = append(options, candidate)
		}
	}
	return options
}

func (e *GameEngine) cpuView(p *domain.Player) CPUView {
	view := CPUView{
		Hand:          append([]domain.Card(nil), p.Cards...),
		FieldCards:    append([]domain.Card(nil), e.fieldCards...),
		Revolution:    e.revolution,
		CardsToFinish: len(p.Cards),
	}
	for _, o := range e.players {
		if o.ID != p.ID && o.IsActive {
			view.OpponentCounts = append(view.OpponentCounts, len(o.Cards))
		}
	}
	return view
}

// exchangeForBots submits the required strongest cards for every bot donor.
func (e *GameEngine) exchangeForBots() (CPUAction, error) {
	var last CPUAction
	for _, ex := range e.exchanges {
		if ex.Completed {
			continue
		}
		donor := e.player(ex.FromPlayerID)
		if donor == nil || !donor.IsBot() {
			continue
		}
		cards := strongest(donor.Cards, ex.Count, e.revolution)
		if err := e.ExchangeCards(donor.ID, cards); err != nil {
			if errors.Is(err, ErrInvariant) {
				return CPUAction{}, err
			}
			return CPUAction{}, e.invariantf("cpu exchange rejected for %s: %v", donor.ID, err)
		}
		last = CPUAction{Action: CPUExchange, PlayerID: donor.ID, Cards: cards}
		if e.state != domain.StateCardExchange {
			break
		}
	}
	if last.Action == "" {
		return CPUAction{}, ErrNotCPU
	}
	return last, nil
}
