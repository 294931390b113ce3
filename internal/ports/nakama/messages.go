package nakama

import (
	"encoding/json"
	"errors"

	"daifugo/internal/app"
	"daifugo/internal/domain"
)

// StartGameRequest is the optional payload of OpStartGame.
type StartGameRequest struct {
	Rules *domain.RuleOverrides `json:"rules,omitempty"`
}

// CardsRequest is the payload of OpPlayCards and OpExchangeCards.
type CardsRequest struct {
	CardIDs []string `json:"card_ids"`
}

// SeatView describes one lobby seat.
type SeatView struct {
	UserID      string `json:"user_id"`
	Seat        int    `json:"seat"`
	IsOwner     bool   `json:"is_owner"`
	IsBot       bool   `json:"is_bot"`
	Connected   bool   `json:"connected"`
	DisplayName string `json:"display_name"`
	AvatarIndex int    `json:"avatar_index"`
}

// LobbyState is broadcast with OpLobbyState whenever seating changes.
type LobbyState struct {
	Seats     []string   `json:"seats"`
	OwnerSeat int        `json:"owner_seat"`
	Tick      int64      `json:"tick"`
	Playing   bool       `json:"playing"`
	Players   []SeatView `json:"players"`
}

// GameStateMessage wraps the public snapshot with the turn timer.
type GameStateMessage struct {
	State                app.Snapshot `json:"state"`
	TurnSecondsRemaining int64        `json:"turn_seconds_remaining"`
}

// ExchangeDue tells a donor what it owes.
type ExchangeDue struct {
	ToPlayerID string        `json:"to_player_id"`
	Count      int           `json:"count"`
	Required   []domain.Card `json:"required"`
}

// HandMessage is sent privately with OpHand.
type HandMessage struct {
	Cards    []domain.Card `json:"cards"`
	Exchange *ExchangeDue  `json:"exchange,omitempty"`
}

// HistoryMessage carries the entries recorded since the last broadcast.
type HistoryMessage struct {
	Entries []app.HistoryEntry `json:"entries"`
}

// RoundEndedMessage is broadcast with OpRoundEnded.
type RoundEndedMessage struct {
	Result app.RoundResult `json:"result"`
}

// GameEndedMessage is broadcast with OpGameEnded.
type GameEndedMessage struct {
	GameID       string            `json:"game_id"`
	Results      []app.RoundResult `json:"results"`
	RatingDeltas map[string]int64  `json:"rating_deltas"`
}

// ErrorMessage is sent privately with OpError.
type ErrorMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// decodePayload unmarshals data into v. An empty payload leaves v untouched.
func decodePayload(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// errorCode maps an engine error to the code reported to the client.
func errorCode(err error) int {
	switch {
	case errors.Is(err, app.ErrInvariant):
		return errCodeInternal
	case errors.Is(err, app.ErrNotYourTurn),
		errors.Is(err, app.ErrNotPlaying),
		errors.Is(err, app.ErrNotExchanging),
		errors.Is(err, app.ErrPlayerFinished):
		return errCodeConflict
	case errors.Is(err, app.ErrUnknownPlayer):
		return errCodeForbidden
	default:
		return errCodeBadRequest
	}
}
