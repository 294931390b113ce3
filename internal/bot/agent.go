package bot

import (
	"errors"
	"math/rand"

	"daifugo/internal/app"
	"daifugo/internal/domain"
)

// ErrNotAgentTurn is returned when an agent is asked to act out of turn.
var ErrNotAgentTurn = errors.New("not this agent's turn")

// Agent is an autonomous bot seat. It waits a random number of ticks before
// each move so bots do not answer instantly.
type Agent struct {
	ID     string
	Name   string
	Level  Level
	Policy app.CPUPolicy

	actAt int64 // 0 while no move is scheduled
}

// NewAgent creates an agent for identity with the policy its level asks for.
func NewAgent(identity BotIdentity, rng *rand.Rand) (*Agent, error) {
	policy, err := NewPolicy(identity.Level, rng)
	if err != nil {
		return nil, err
	}
	return &Agent{
		ID:     identity.UserID,
		Name:   identity.DisplayName,
		Level:  identity.Level,
		Policy: policy,
	}, nil
}

// Ready arms the think delay on the first call of a turn and reports whether
// the delay has elapsed by tick.
func (a *Agent) Ready(tick int64, rng *rand.Rand, minDelay, maxDelay int) bool {
	if a.actAt == 0 {
		delay := minDelay
		if maxDelay > minDelay {
			delay += rng.Intn(maxDelay - minDelay + 1)
		}
		a.actAt = tick + int64(delay)
	}
	return tick >= a.actAt
}

// Reset cancels a pending move.
func (a *Agent) Reset() {
	a.actAt = 0
}

// Act plays the agent's turn on e. During the card exchange every pending bot
// offer is submitted at once.
func (a *Agent) Act(e *app.GameEngine) (app.CPUAction, error) {
	if a == nil {
		return app.CPUAction{}, ErrNotAgentTurn
	}
	a.Reset()
	if e.State() == domain.StatePlaying {
		if id, _ := e.CurrentPlayer(); id != a.ID {
			return app.CPUAction{}, ErrNotAgentTurn
		}
	}
	return e.ExecuteCPUTurnWith(a.Policy)
}
