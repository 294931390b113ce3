package app

import (
	"fmt"
	"sort"

	"daifugo/internal/domain"

	"github.com/sirupsen/logrus"
)

// RoundRanking is one player's class assignment for a round.
type RoundRanking struct {
	PlayerID string       `json:"playerId"`
	Rank     int          `json:"rank"`
	Class    domain.Class `json:"class"`
}

// Standing is one player's final position in a round.
type Standing struct {
	PlayerID  string            `json:"playerId"`
	Username  string            `json:"username"`
	Kind      domain.PlayerKind `json:"kind"`
	Rank      int               `json:"rank"`
	Class     domain.Class      `json:"class"`
	CardsLeft int               `json:"cardsLeft"`
}

// RoundResult records how a round ended.
type RoundResult struct {
	Round     int        `json:"round"`
	Standings []Standing `json:"standings"` // ordered by rank
}

func (e *GameEngine) handlePlayerWin(p *domain.Player) {
	p.IsActive = false
	e.rankings = append(e.rankings, p.ID)
	p.Rank = len(e.rankings)
	e.record(EventPlayerFinished, p, nil, fmt.Sprintf("%s finished in place %d", p.Username, p.Rank))

	if e.lastPlayerID == p.ID {
		e.clearField()
		e.lastPlayerID = ""
	}
	if domain.CountActivePlayers(e.players) <= 1 {
		e.endRound()
		return
	}
	if !e.players[e.currentPlayerIndex].IsActive {
		e.advanceTurn()
	}
}

func (e *GameEngine) endRound() {
	var remaining []*domain.Player
	for _, p := range e.players {
		if p.IsActive {
			remaining = append(remaining, p)
		}
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		if len(remaining[i].Cards) != len(remaining[j].Cards) {
			return len(remaining[i].Cards) < len(remaining[j].Cards)
		}
		return remaining[i].PlayerOrder < remaining[j].PlayerOrder
	})
	for _, p := range remaining {
		p.IsActive = false
		e.rankings = append(e.rankings, p.ID)
		p.Rank = len(e.rankings)
	}

	e.assignRanks()

	result := RoundResult{Round: e.currentRound}
	for _, id := range e.rankings {
		p := e.player(id)
		result.Standings = append(result.Standings, Standing{
			PlayerID:  p.ID,
			Username:  p.Username,
			Kind:      p.Kind,
			Rank:      p.Rank,
			Class:     p.CurrentRank,
			CardsLeft: len(p.Cards),
		})
	}
	e.results = append(e.results, result)
	e.record(EventRoundEnded, nil, nil, fmt.Sprintf("round %d ended", e.currentRound))
	e.log.WithFields(logrus.Fields{
		"round":    e.currentRound,
		"rankings": e.rankings,
	}).Info("round ended")

	if e.currentRound < e.rules.Rounds {
		e.startNextRound()
		return
	}
	e.endGame()
}

// assignRanks maps this round's finishing order to classes.
func (e *GameEngine) assignRanks() {
	classes := domain.ClassesFor(len(e.players))
	e.roundRankings = make([]RoundRanking, 0, len(e.rankings))
	for i, id := range e.rankings {
		p := e.player(id)
		p.CurrentRank = classes[i]
		e.roundRankings = append(e.roundRankings, RoundRanking{
			PlayerID: p.ID,
			Rank:     p.Rank,
			Class:    p.CurrentRank,
		})
	}
}

// startNextRound deals the next round. The previous daihinmin leads, and
// classes carried over from the last round trigger the card exchange.
func (e *GameEngine) startNextRound() {
	leader := 0
	if p := e.playerWithClass(domain.ClassDaihinmin); p != nil {
		leader = p.PlayerOrder
	}

	e.currentRound++
	e.dealRound()
	e.currentPlayerIndex = leader
	e.record(EventRoundStarted, e.players[leader], nil, fmt.Sprintf("round %d started, %s leads", e.currentRound, e.players[leader].Username))

	if e.prepareCardExchange() {
		e.state = domain.StateCardExchange
		return
	}
	e.state = domain.StatePlaying
}

func (e *GameEngine) endGame() {
	e.state = domain.StateFinished
	e.record(EventGameEnded, nil, nil, fmt.Sprintf("game over after %d round(s)", e.currentRound))
	e.log.WithField("rounds", e.currentRound).Info("game finished")
}

func (e *GameEngine) playerWithClass(c domain.Class) *domain.Player {
	for _, p := range e.players {
		if p.CurrentRank == c {
			return p
		}
	}
	return nil
}
