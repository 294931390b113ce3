package app

import "daifugo/internal/domain"

// PlayerView is the public part of a seat. Hands are never included.
type PlayerView struct {
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	Kind        domain.PlayerKind `json:"kind"`
	PlayerOrder int               `json:"playerOrder"`
	CardCount   int               `json:"cardCount"`
	IsActive    bool              `json:"isActive"`
	Rank        int               `json:"rank,omitempty"`
	CurrentRank domain.Class      `json:"currentRank,omitempty"`
}

// ExchangeView is the public part of an exchange obligation.
type ExchangeView struct {
	FromPlayerID string `json:"fromPlayerId"`
	ToPlayerID   string `json:"toPlayerId"`
	Count        int    `json:"count"`
	Completed    bool   `json:"completed"`
}

// Snapshot is an immutable copy of the public game state.
type Snapshot struct {
	GameID             string              `json:"gameId"`
	GameState          domain.GameState    `json:"gameState"`
	Players            []PlayerView        `json:"players"`
	CurrentPlayerIndex int                 `json:"currentPlayerIndex"`
	CurrentPlayerID    string              `json:"currentPlayerId,omitempty"`
	FieldCards         []domain.Card       `json:"fieldCards"`
	FieldStrength      int                 `json:"fieldStrength"`
	FieldCount         int                 `json:"fieldCount"`
	Revolution         bool                `json:"revolution"`
	ShibariActive      bool                `json:"shibariActive"`
	LastSuit           domain.Suit         `json:"lastSuit,omitempty"`
	PassCount          int                 `json:"passCount"`
	LastPlayerID       string              `json:"lastPlayerId,omitempty"`
	Rankings           []string            `json:"rankings"`
	CurrentRound       int                 `json:"currentRound"`
	TotalRounds        int                 `json:"totalRounds"`
	RoundRankings      []RoundRanking      `json:"roundRankings"`
	CardExchange       []ExchangeView      `json:"cardExchange,omitempty"`
	DiscardCount       int                 `json:"discardCount"`
	History            []HistoryEntry      `json:"gameHistory"`
	Rules              domain.RuleSettings `json:"rules"`
}

// GetGameState returns a deep copy of the public state.
func (e *GameEngine) GetGameState() Snapshot {
	s := Snapshot{
		GameID:             e.gameID,
		GameState:          e.state,
		CurrentPlayerIndex: e.currentPlayerIndex,
		FieldCards:         append([]domain.Card{}, e.fieldCards...),
		FieldStrength:      e.fieldStrength,
		FieldCount:         e.fieldCount,
		Revolution:         e.revolution,
		ShibariActive:      e.shibariActive,
		LastSuit:           e.lastSuit,
		PassCount:          e.passCount,
		LastPlayerID:       e.lastPlayerID,
		Rankings:           append([]string{}, e.rankings...),
		CurrentRound:       e.currentRound,
		TotalRounds:        e.rules.Rounds,
		RoundRankings:      append([]RoundRanking{}, e.roundRankings...),
		DiscardCount:       e.discarded,
		History:            e.history.Entries(),
		Rules:              e.rules,
	}
	for _, p := range e.players {
		s.Players = append(s.Players, PlayerView{
			ID:          p.ID,
			Username:    p.Username,
			Kind:        p.Kind,
			PlayerOrder: p.PlayerOrder,
			CardCount:   len(p.Cards),
			IsActive:    p.IsActive,
			Rank:        p.Rank,
			CurrentRank: p.CurrentRank,
		})
	}
	if e.state == domain.StatePlaying && len(e.players) > 0 {
		s.CurrentPlayerID = e.players[e.currentPlayerIndex].ID
	}
	for _, ex := range e.exchanges {
		s.CardExchange = append(s.CardExchange, ExchangeView{
			FromPlayerID: ex.FromPlayerID,
			ToPlayerID:   ex.ToPlayerID,
			Count:        ex.Count,
			Completed:    ex.Completed,
		})
	}
	return s
}

// Player returns the view of one seat.
func (s Snapshot) Player(id string) (PlayerView, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerView{}, false
}
