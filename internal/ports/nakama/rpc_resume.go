package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"daifugo/internal/app"
	"daifugo/internal/cache"
	"daifugo/internal/domain"

	"github.com/heroiclabs/nakama-common/runtime"
)

// SnapshotReader reads cached games back for reconnecting clients.
type SnapshotReader interface {
	ActiveGameLookup
	MatchGame(ctx context.Context, matchID string) (string, error)
	LoadGame(ctx context.Context, gameID string) (app.Snapshot, error)
	LoadHand(ctx context.Context, gameID, playerID string) ([]domain.Card, error)
	ExtendTTL(ctx context.Context, gameID string, d time.Duration) error
}

// ResumeResponse lets a client draw the table before its socket rejoins.
type ResumeResponse struct {
	MatchID string        `json:"match_id"`
	State   app.Snapshot  `json:"state"`
	Hand    []domain.Card `json:"hand"`
}

// rpcResumeGame serves the caller's running game from the cache. Reading it
// keeps the cached game alive for another TTL.
func rpcResumeGame(snapshots SnapshotReader) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
		if userID == "" {
			return "", runtime.NewError("no user in context", rpcInvalidArgument)
		}

		matchID, err := snapshots.UserActiveGame(ctx, userID)
		if err != nil {
			logger.Error("ResumeGame [User:%s]: Active game lookup failed: %v", userID, err)
			return "", runtime.NewError("failed to look up game", rpcInternal)
		}
		if matchID == "" {
			return "", runtime.NewError("no running game", rpcNotFound)
		}
		gameID, err := snapshots.MatchGame(ctx, matchID)
		if err != nil {
			logger.Error("ResumeGame [User:%s]: Game lookup for match %s failed: %v", userID, matchID, err)
			return "", runtime.NewError("failed to look up game", rpcInternal)
		}
		if gameID == "" {
			return "", runtime.NewError("no running game", rpcNotFound)
		}

		state, err := snapshots.LoadGame(ctx, gameID)
		if errors.Is(err, cache.ErrNotFound) {
			return "", runtime.NewError("no running game", rpcNotFound)
		}
		if err != nil {
			logger.Error("ResumeGame [User:%s]: Failed to load game %s: %v", userID, gameID, err)
			return "", runtime.NewError("failed to load game", rpcInternal)
		}
		hand, err := snapshots.LoadHand(ctx, gameID, userID)
		if err != nil {
			logger.Error("ResumeGame [User:%s]: Failed to load hand in %s: %v", userID, gameID, err)
			return "", runtime.NewError("failed to load hand", rpcInternal)
		}
		if err := snapshots.ExtendTTL(ctx, gameID, 0); err != nil {
			logger.Warn("ResumeGame [User:%s]: Failed to extend game %s: %v", userID, gameID, err)
		}

		b, err := json.Marshal(ResumeResponse{MatchID: matchID, State: state, Hand: hand})
		if err != nil {
			return "", runtime.NewError("failed to encode game", rpcInternal)
		}
		return string(b), nil
	}
}
