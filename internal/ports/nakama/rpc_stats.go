package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"daifugo/internal/app"
	"daifugo/internal/database"

	"github.com/heroiclabs/nakama-common/runtime"
)

// gRPC status codes used by RPC errors.
const (
	rpcInvalidArgument = 3
	rpcNotFound        = 5
	rpcInternal        = 13
)

// maxLeaderboardPage caps one leaderboard request.
const maxLeaderboardPage = 100

// StatsReader serves recorded player statistics.
type StatsReader interface {
	Stats(ctx context.Context, playerID string) (database.PlayerStats, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]database.PlayerStats, error)
	GameRounds(ctx context.Context, gameID string) ([]app.RoundResult, error)
}

type playerStatsRequest struct {
	UserID string `json:"user_id"`
}

type leaderboardRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type leaderboardResponse struct {
	Players []database.PlayerStats `json:"players"`
}

type gameRoundsRequest struct {
	GameID string `json:"game_id"`
}

type gameRoundsResponse struct {
	GameID string            `json:"game_id"`
	Rounds []app.RoundResult `json:"rounds"`
}

// rpcPlayerStats returns the statistics of payload.user_id, or of the caller.
func rpcPlayerStats(stats StatsReader) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		var req playerStatsRequest
		if err := decodePayload([]byte(payload), &req); err != nil {
			return "", runtime.NewError("invalid payload", rpcInvalidArgument)
		}
		if req.UserID == "" {
			req.UserID, _ = ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
		}
		if req.UserID == "" {
			return "", runtime.NewError("user_id is required", rpcInvalidArgument)
		}

		st, err := stats.Stats(ctx, req.UserID)
		if errors.Is(err, database.ErrPlayerNotFound) {
			return "", runtime.NewError("player has no recorded games", rpcNotFound)
		}
		if err != nil {
			logger.Error("PlayerStats: Failed to load stats for %s: %v", req.UserID, err)
			return "", runtime.NewError("failed to load stats", rpcInternal)
		}

		b, err := json.Marshal(st)
		if err != nil {
			return "", runtime.NewError("failed to encode stats", rpcInternal)
		}
		return string(b), nil
	}
}

// rpcLeaderboard returns one page of players ordered by rating.
func rpcLeaderboard(stats StatsReader) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		var req leaderboardRequest
		if err := decodePayload([]byte(payload), &req); err != nil {
			return "", runtime.NewError("invalid payload", rpcInvalidArgument)
		}
		if req.Limit <= 0 || req.Limit > maxLeaderboardPage {
			req.Limit = maxLeaderboardPage
		}

		players, err := stats.Leaderboard(ctx, req.Limit, req.Offset)
		if err != nil {
			logger.Error("Leaderboard: Failed to load page: %v", err)
			return "", runtime.NewError("failed to load leaderboard", rpcInternal)
		}

		b, err := json.Marshal(leaderboardResponse{Players: players})
		if err != nil {
			return "", runtime.NewError("failed to encode leaderboard", rpcInternal)
		}
		return string(b), nil
	}
}

// rpcGameRounds returns every round standing of a recorded game.
func rpcGameRounds(stats StatsReader) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		var req gameRoundsRequest
		if err := decodePayload([]byte(payload), &req); err != nil || req.GameID == "" {
			return "", runtime.NewError("game_id is required", rpcInvalidArgument)
		}

		rounds, err := stats.GameRounds(ctx, req.GameID)
		if err != nil {
			logger.Error("GameRounds: Failed to load game %s: %v", req.GameID, err)
			return "", runtime.NewError("failed to load game", rpcInternal)
		}
		if len(rounds) == 0 {
			return "", runtime.NewError("game not found", rpcNotFound)
		}

		b, err := json.Marshal(gameRoundsResponse{GameID: req.GameID, Rounds: rounds})
		if err != nil {
			return "", runtime.NewError("failed to encode game", rpcInternal)
		}
		return string(b), nil
	}
}
