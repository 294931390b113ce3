package app

import "daifugo/internal/domain"

// MinPlayersToStartGame defines the minimum number of seated players required to start a game.
const MinPlayersToStartGame = domain.MinPlayers

// DefaultHistorySize is how many history entries a snapshot carries.
const DefaultHistorySize = 10

// DefaultRatingStep scales the per-round rating swing.
const DefaultRatingStep int64 = 10
