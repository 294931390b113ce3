package ports

import (
	"context"
	"time"

	"daifugo/internal/app"
	"daifugo/internal/domain"
)

// GameRecord is everything persisted about one finished game.
type GameRecord struct {
	GameID     string
	MatchID    string
	Rules      domain.RuleSettings
	Results    []app.RoundResult
	RatingStep int64
	FinishedAt time.Time
}

// ResultsPort stores finished games.
type ResultsPort interface {
	RecordGame(ctx context.Context, record GameRecord) error
}
