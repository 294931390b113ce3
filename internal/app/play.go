package app

import (
	"fmt"

	"daifugo/internal/domain"
)

// CanPlayCards reports whether the player may play cards now. A nil error
// means the play is legal; otherwise the error wraps the rule that failed.
func (e *GameEngine) CanPlayCards(playerID string, cards []domain.Card) error {
	_, _, err := e.validatePlay(playerID, cards)
	return err
}

func (e *GameEngine) validateTurn(playerID string) (*domain.Player, error) {
	if e.state != domain.StatePlaying {
		return nil, ErrNotPlaying
	}
	p := e.player(playerID)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	if !p.IsActive {
		return nil, ErrPlayerFinished
	}
	if e.currentPlayerIndex != p.PlayerOrder {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

// validatePlay runs the legality checks in order and returns the hand's
// copies of the submitted cards. Only card IDs are read from cards.
func (e *GameEngine) validatePlay(playerID string, cards []domain.Card) (*domain.Player, []domain.Card, error) {
	p, err := e.validateTurn(playerID)
	if err != nil {
		return nil, nil, err
	}
	if len(cards) == 0 {
		return nil, nil, ErrNoCards
	}
	played, badID, repeated := domain.ResolveCards(p.Cards, cards)
	if repeated {
		return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateCard, badID)
	}
	if badID != "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrCardNotInHand, badID)
	}

	if e.fieldCount == 0 {
		if !domain.AllSameRank(played) {
			return nil, nil, fmt.Errorf("%w: opening play must be one rank", ErrRankMismatch)
		}
		return p, played, nil
	}

	if len(played) != e.fieldCount {
		return nil, nil, fmt.Errorf("%w: field needs %d", ErrCountMismatch, e.fieldCount)
	}
	sequence := e.rules.EnableSequence && len(played) >= 3 && domain.IsSequence(played)
	if !domain.AllSameRank(played) && !sequence {
		return nil, nil, ErrRankMismatch
	}
	if e.rules.JokerKiller && domain.IsJokerKill(e.fieldCards, played) {
		return p, played, nil
	}
	if e.shibariActive && !domain.ContainsJoker(played) {
		for _, c := range played {
			if c.Suit != e.lastSuit {
				return nil, nil, fmt.Errorf("%w: %s only", ErrShibari, e.lastSuit)
			}
		}
	}
	if e.rules.EnableSuit {
		if suit := domain.FieldSuit(e.fieldCards); suit != "" {
			for _, c := range played {
				if !c.IsJoker() && c.Suit != suit {
					return nil, nil, fmt.Errorf("%w: %s", ErrSuitLock, suit)
				}
			}
		}
	}
	if !domain.Beats(domain.PlayStrength(played), e.fieldStrength, e.revolution) {
		return nil, nil, ErrTooWeak
	}
	return p, played, nil
}

// PlayCards plays cards for the player and returns the resulting snapshot.
func (e *GameEngine) PlayCards(playerID string, cards []domain.Card) (Snapshot, error) {
	p, played, err := e.validatePlay(playerID, cards)
	if err != nil {
		return Snapshot{}, err
	}

	p.Cards = domain.RemoveCards(p.Cards, played)
	e.discarded += len(e.fieldCards)
	e.fieldCards = played
	e.fieldCount = len(played)
	e.fieldStrength = domain.PlayStrength(played)
	e.lastPlayerID = p.ID
	e.passCount = 0
	e.record(EventCardPlayed, p, played, fmt.Sprintf("%s played %s", p.Username, describe(played)))

	continueTurn, skip := e.checkSpecialRules(p, played)
	if !continueTurn {
		e.advanceTurn()
		if skip {
			e.advanceTurn()
		}
	}

	if len(p.Cards) == 0 {
		e.handlePlayerWin(p)
	}
	if err := e.checkInvariants(); err != nil {
		return Snapshot{}, err
	}
	return e.GetGameState(), nil
}

// checkSpecialRules applies the rules triggered by an accepted play. It
// reports whether the same player continues and whether the next seat is skipped.
func (e *GameEngine) checkSpecialRules(p *domain.Player, cards []domain.Card) (continueTurn, skip bool) {
	r := e.rules
	sameRank := domain.AllSameRank(cards)

	if r.EnableShibari {
		suit := domain.CommonSuit(cards)
		locked := suit != "" && suit != domain.SuitJoker && suit == e.lastSuit
		if locked && !e.shibariActive {
			e.record(EventShibari, p, nil, fmt.Sprintf("shibari: locked to %s", suit))
		}
		e.shibariActive = locked
		e.lastSuit = suit
	}

	if r.EnableRevolution && sameRank && len(cards) == 4 {
		e.revolution = !e.revolution
		e.record(EventRevolution, p, nil, fmt.Sprintf("revolution by %s (inverted: %v)", p.Username, e.revolution))
	}
	if r.EnableJBack && domain.ContainsRank(cards, domain.RankJack) {
		e.revolution = !e.revolution
		e.record(EventJBack, p, nil, fmt.Sprintf("J-back by %s (inverted: %v)", p.Username, e.revolution))
	}
	if r.EnableSequence && !sameRank && domain.IsSequence(cards) {
		e.record(EventSequence, p, nil, fmt.Sprintf("%s played a sequence of %d", p.Username, len(cards)))
	}

	if r.Enable8Cut && domain.ContainsRank(cards, domain.RankEight) {
		continueTurn = true
		e.record(EventEightCut, p, nil, "8-cut: field cleared")
	}
	if r.EnableKickback && domain.ContainsRank(cards, domain.RankTen) {
		continueTurn = true
		e.record(EventTenDiscard, p, nil, "10-discard: field cleared")
	}
	if continueTurn {
		e.clearField()
		return true, false
	}

	if r.EnableKickback && domain.ContainsRank(cards, domain.RankFive) {
		skip = true
		e.record(EventFiveSkip, p, nil, "5-skip: next player skipped")
	}
	return false, skip
}

// Pass passes the player's turn. When everyone else has passed since the
// last play, the field is cleared and the turn returns to its owner.
func (e *GameEngine) Pass(playerID string) (Snapshot, error) {
	p, err := e.validateTurn(playerID)
	if err != nil {
		return Snapshot{}, err
	}
	if e.fieldCount == 0 {
		return Snapshot{}, ErrMustLead
	}

	e.passCount++
	e.record(EventTurnPassed, p, nil, fmt.Sprintf("%s passed", p.Username))

	active := domain.CountActivePlayers(e.players)
	if e.lastPlayerID != "" && e.passCount >= active-1 {
		owner := e.player(e.lastPlayerID)
		if owner == nil {
			return Snapshot{}, e.invariantf("field owner %s not seated", e.lastPlayerID)
		}
		e.clearField()
		e.currentPlayerIndex = owner.PlayerOrder
		if !owner.IsActive {
			e.advanceTurn()
		}
		e.record(EventFieldFlowed, owner, nil, fmt.Sprintf("all passed, %s leads", e.players[e.currentPlayerIndex].Username))
	} else {
		e.advanceTurn()
	}

	if err := e.checkInvariants(); err != nil {
		return Snapshot{}, err
	}
	return e.GetGameState(), nil
}
