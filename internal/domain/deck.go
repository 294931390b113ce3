package domain

import (
	"fmt"
	"math/rand"
	"sort"
)

// NewDeck returns an ordered 54-card deck.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, s := range StandardSuits {
		for _, r := range StandardRanks {
			deck = append(deck, Card{
				Suit:     s,
				Rank:     r,
				Strength: RankStrength(r),
				ID:       fmt.Sprintf("%s_%s", s, r),
			})
		}
	}
	for i := 1; i <= JokerCount; i++ {
		deck = append(deck, Card{
			Suit:     SuitJoker,
			Rank:     RankJoker,
			Strength: JokerStrength,
			ID:       fmt.Sprintf("joker_%d", i),
		})
	}
	return deck
}

// ShuffleDeck shuffles deck in place with rng.
func ShuffleDeck(deck []Card, rng *rand.Rand) {
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
}

// Deal splits deck into n hands as evenly as possible. Seats earlier in the
// order receive the remainder. Hands are sorted.
func Deal(deck []Card, n int) [][]Card {
	if n <= 0 {
		return nil
	}
	hands := make([][]Card, n)
	base, extra := len(deck)/n, len(deck)%n
	idx := 0
	for seat := 0; seat < n; seat++ {
		size := base
		if seat < extra {
			size++
		}
		hands[seat] = append([]Card(nil), deck[idx:idx+size]...)
		SortHand(hands[seat])
		idx += size
	}
	return hands
}

// SortHand orders a hand by ascending strength, then suit order.
func SortHand(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Strength != cards[j].Strength {
			return cards[i].Strength < cards[j].Strength
		}
		return suitOrder(cards[i].Suit) < suitOrder(cards[j].Suit)
	})
}

func suitOrder(s Suit) int {
	for i, st := range StandardSuits {
		if st == s {
			return i
		}
	}
	return len(StandardSuits)
}
