package domain

import "fmt"

// GameState is the lifecycle stage of a Daifugo game.
type GameState string

const (
	// StateWaiting is the state before the first deal.
	StateWaiting GameState = "waiting"
	// StatePlaying is the state where cards are played.
	StatePlaying GameState = "playing"
	// StateCardExchange is the state between rounds while classes swap cards.
	StateCardExchange GameState = "card_exchange"
	// StateFinished is the state after the last round.
	StateFinished GameState = "finished"
)

// PlayerKind tags a seat as human or computer controlled.
type PlayerKind string

const (
	KindHuman PlayerKind = "human"
	KindBot   PlayerKind = "bot"
)

// Class is the persistent standing a player earns at the end of a round.
type Class string

const (
	ClassNone      Class = ""
	ClassDaifugo   Class = "daifugo"
	ClassFugo      Class = "fugo"
	ClassHeimin    Class = "heimin"
	ClassDaihinmin Class = "daihinmin"
)

// Card is a single playing card. Cards are values and never change after the deal.
type Card struct {
	Suit     Suit   `json:"suit"`
	Rank     string `json:"rank"`
	Strength int    `json:"strength"`
	ID       string `json:"id"`
}

// IsJoker reports whether c is one of the two jokers.
func (c Card) IsJoker() bool {
	return c.Suit == SuitJoker
}

func (c Card) String() string {
	if c.IsJoker() {
		return "JOKER"
	}
	return fmt.Sprintf("%s%s", c.Rank, suitSymbol(c.Suit))
}

func suitSymbol(s Suit) string {
	switch s {
	case SuitSpades:
		return "♠"
	case SuitHearts:
		return "♥"
	case SuitDiamonds:
		return "♦"
	case SuitClubs:
		return "♣"
	}
	return "?"
}

// PlayerSeed is the identity a caller supplies for each seat.
type PlayerSeed struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Kind     PlayerKind `json:"kind"`
}

// Player holds one seat's state within a game.
type Player struct {
	ID          string
	Username    string
	Kind        PlayerKind
	PlayerOrder int // fixed seat index
	Cards       []Card
	IsActive    bool
	Rank        int // finishing position this round, 0 while still playing
	CurrentRank Class
}

// IsBot reports whether the engine drives this seat.
func (p *Player) IsBot() bool {
	return p.Kind == KindBot
}
