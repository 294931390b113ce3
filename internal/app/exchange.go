package app

import (
	"fmt"
	"sort"

	"daifugo/internal/domain"
)

// CardExchange is one donor-to-recipient obligation between rounds.
type CardExchange struct {
	FromPlayerID string
	ToPlayerID   string
	Count        int
	Offered      []domain.Card
	Returned     []domain.Card
	Completed    bool
}

// prepareCardExchange creates the obligations for the new round. It
// reports whether any exist.
func (e *GameEngine) prepareCardExchange() bool {
	e.exchanges = nil
	top, bottom := e.playerWithClass(domain.ClassDaifugo), e.playerWithClass(domain.ClassDaihinmin)
	if top != nil && bottom != nil {
		e.exchanges = append(e.exchanges, &CardExchange{FromPlayerID: bottom.ID, ToPlayerID: top.ID, Count: 2})
	}
	if len(e.players) == 4 {
		rich, commoner := e.playerWithClass(domain.ClassFugo), e.playerWithClass(domain.ClassHeimin)
		if rich != nil && commoner != nil {
			e.exchanges = append(e.exchanges, &CardExchange{FromPlayerID: commoner.ID, ToPlayerID: rich.ID, Count: 1})
		}
	}
	for _, ex := range e.exchanges {
		from, to := e.player(ex.FromPlayerID), e.player(ex.ToPlayerID)
		e.record(EventExchangeRequested, from, nil, fmt.Sprintf("%s owes %d card(s) to %s", from.Username, ex.Count, to.Username))
	}
	return len(e.exchanges) > 0
}

// StrongestCards returns the n strongest cards of a player's hand under the
// current polarity; the only offer ExchangeCards accepts.
func (e *GameEngine) StrongestCards(playerID string, n int) ([]domain.Card, error) {
	p := e.player(playerID)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	return strongest(p.Cards, n, e.revolution), nil
}

// PendingExchange returns the open obligation owed by playerID, if any.
func (e *GameEngine) PendingExchange(playerID string) (CardExchange, bool) {
	if ex := e.pendingFrom(playerID); ex != nil {
		return *ex, true
	}
	return CardExchange{}, false
}

func (e *GameEngine) pendingFrom(playerID string) *CardExchange {
	for _, ex := range e.exchanges {
		if ex.FromPlayerID == playerID && !ex.Completed {
			return ex
		}
	}
	return nil
}

// ExchangeCards submits a donor's cards. Once every obligation is met the
// cards change hands and play begins.
func (e *GameEngine) ExchangeCards(playerID string, cards []domain.Card) error {
	if e.state != domain.StateCardExchange {
		return ErrNotExchanging
	}
	p := e.player(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	ex := e.pendingFrom(playerID)
	if ex == nil {
		return ErrNoExchangeDue
	}
	if len(cards) != ex.Count {
		return fmt.Errorf("%w: owe %d", ErrExchangeCount, ex.Count)
	}
	offered, badID, repeated := domain.ResolveCards(p.Cards, cards)
	if repeated {
		return fmt.Errorf("%w: %s", ErrDuplicateCard, badID)
	}
	if badID != "" {
		return fmt.Errorf("%w: %s", ErrCardNotInHand, badID)
	}
	if !sameStrengths(offered, strongest(p.Cards, ex.Count, e.revolution)) {
		return ErrExchangeNotStrongest
	}

	ex.Offered = offered
	ex.Completed = true
	e.record(EventExchangeSubmitted, p, nil, fmt.Sprintf("%s handed over %d card(s)", p.Username, ex.Count))

	for _, other := range e.exchanges {
		if !other.Completed {
			return nil
		}
	}
	return e.completeCardExchange()
}

// completeCardExchange moves the offered cards and returns each recipient's
// weakest cards, measured before the transfer.
func (e *GameEngine) completeCardExchange() error {
	for _, ex := range e.exchanges {
		donor, recipient := e.player(ex.FromPlayerID), e.player(ex.ToPlayerID)
		if donor == nil || recipient == nil {
			return e.invariantf("exchange between %s and %s lost a seat", ex.FromPlayerID, ex.ToPlayerID)
		}
		ex.Returned = weakest(recipient.Cards, ex.Count, e.revolution)

		donor.Cards = append(domain.RemoveCards(donor.Cards, ex.Offered), ex.Returned...)
		recipient.Cards = append(domain.RemoveCards(recipient.Cards, ex.Returned), ex.Offered...)
		domain.SortHand(donor.Cards)
		domain.SortHand(recipient.Cards)
	}
	e.state = domain.StatePlaying
	e.record(EventExchangeCompleted, nil, nil, "card exchange complete")
	return e.checkInvariants()
}

func strongest(hand []domain.Card, n int, revolution bool) []domain.Card {
	ordered := domain.StrongestFirst(hand, revolution)
	if n > len(ordered) {
		n = len(ordered)
	}
	return ordered[:n]
}

func weakest(hand []domain.Card, n int, revolution bool) []domain.Card {
	ordered := domain.StrongestFirst(hand, revolution)
	if n > len(ordered) {
		n = len(ordered)
	}
	return append([]domain.Card(nil), ordered[len(ordered)-n:]...)
}

func sameStrengths(a, b []domain.Card) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := make([]int, len(a)), make([]int, len(b))
	for i := range a {
		sa[i], sb[i] = a[i].Strength, b[i].Strength
	}
	sort.Ints(sa)
	sort.Ints(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
