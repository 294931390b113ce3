package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
)

// QuickMatchResponse is the payload returned to clients when requesting a lobby-capable match.
type QuickMatchResponse struct {
	MatchID string `json:"match_id"`
	IsNew   bool   `json:"is_new"`
	Rejoin  bool   `json:"rejoin"`
}

// ActiveGameLookup finds the match a user is still seated in.
type ActiveGameLookup interface {
	UserActiveGame(ctx context.Context, userID string) (string, error)
}

// rpcQuickMatch sends the caller back to an unfinished game, else to an open
// lobby, else to a new match.
func rpcQuickMatch(deps Dependencies, seats int) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)

		if deps.ActiveGames != nil && userID != "" {
			matchID, err := deps.ActiveGames.UserActiveGame(ctx, userID)
			if err != nil {
				logger.Warn("QuickMatch [User:%s]: Active game lookup failed: %v", userID, err)
			} else if matchID != "" {
				if match, err := nk.MatchGet(ctx, matchID); err == nil && match != nil {
					logger.Info("QuickMatch [User:%s]: Rejoining match %s", userID, matchID)
					return encodeQuickMatch(QuickMatchResponse{MatchID: matchID, Rejoin: true})
				}
			}
		}

		query := fmt.Sprintf("+label.game:%s +label.phase:%s +label.open:>=1", gameLabel, phaseLobby)
		limit := 10
		authoritative := true
		minSize := 1
		maxSize := seats - 1

		matches, err := nk.MatchList(ctx, limit, authoritative, "", &minSize, &maxSize, query)
		if err != nil {
			logger.Error("MatchList error: %v", err)
			return "", err
		}

		if len(matches) > 0 {
			return encodeQuickMatch(QuickMatchResponse{MatchID: matches[0].MatchId})
		}

		// Create new match; seat/owner assignment happens in MatchJoin (server-authoritative).
		matchID, err := nk.MatchCreate(ctx, MatchNameDaifugo, map[string]interface{}{})
		if err != nil {
			logger.Error("MatchCreate error: %v", err)
			return "", err
		}
		logger.Info("QuickMatch [User:%s]: Created new match %s", userID, matchID)

		return encodeQuickMatch(QuickMatchResponse{MatchID: matchID, IsNew: true})
	}
}

func encodeQuickMatch(resp QuickMatchResponse) (string, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
