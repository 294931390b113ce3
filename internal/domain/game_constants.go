package domain

// Suit identifies a card suit. Jokers carry their own suit.
type Suit string

const (
	SuitSpades   Suit = "spades"
	SuitHearts   Suit = "hearts"
	SuitDiamonds Suit = "diamonds"
	SuitClubs    Suit = "clubs"
	SuitJoker    Suit = "joker"
)

// Rank tokens referenced by the special rules.
const (
	RankThree = "3"
	RankFive  = "5"
	RankEight = "8"
	RankTen   = "10"
	RankJack  = "J"
	RankTwo   = "2"
	RankJoker = "JOKER"
)

const (
	// DeckSize is the number of cards dealt each round: 52 plus two jokers.
	DeckSize = 54
	// JokerCount is the number of jokers in a deck.
	JokerCount = 2
	// JokerStrength sits above the 2.
	JokerStrength = 16
	// MinPlayers is the smallest table a game can start with.
	MinPlayers = 2
	// MaxPlayers bounds a table so every seat is dealt at least six cards.
	MaxPlayers = 8
)

// StandardSuits lists the four non-joker suits in deck order.
var StandardSuits = []Suit{SuitSpades, SuitHearts, SuitDiamonds, SuitClubs}

// StandardRanks lists the non-joker ranks weakest first.
var StandardRanks = []string{"3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A", "2"}

var rankStrength = func() map[string]int {
	m := make(map[string]int, len(StandardRanks)+1)
	for i, r := range StandardRanks {
		m[r] = i + 3
	}
	m[RankJoker] = JokerStrength
	return m
}()

// RankStrength returns the strength of a rank token, or 0 for an unknown token.
func RankStrength(rank string) int {
	return rankStrength[rank]
}
