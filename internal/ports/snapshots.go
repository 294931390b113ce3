package ports

import (
	"context"

	"daifugo/internal/app"
	"daifugo/internal/domain"
)

// SnapshotStore keeps the latest state of running games outside the process
// so a reconnecting client or an operator can inspect it.
type SnapshotStore interface {
	// SaveGame stores the public snapshot and every hand, refreshing the TTL.
	SaveGame(ctx context.Context, snapshot app.Snapshot, hands map[string][]domain.Card) error
	DeleteGame(ctx context.Context, gameID string) error
	SetUserActiveGame(ctx context.Context, userID, matchID string) error
	// SetMatchGame records the game a match is running.
	SetMatchGame(ctx context.Context, matchID, gameID string) error
	ClearUserActiveGame(ctx context.Context, userID string) error
}
