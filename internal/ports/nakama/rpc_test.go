package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"daifugo/internal/app"
	"daifugo/internal/cache"
	"daifugo/internal/database"
	"daifugo/internal/domain"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// fakeNakama implements the parts of runtime.NakamaModule the RPCs and
// adapters touch. Calling anything else panics on the nil embedded module.
type fakeNakama struct {
	runtime.NakamaModule

	matches     map[string]*api.Match
	listed      []*api.Match
	listQuery   string
	listMaxSize int
	created     []string

	wallet        string
	walletUpdates []*runtime.WalletUpdate
	storageWrites []*runtime.StorageWrite
	multiErr      error

	takenUsernames map[string]bool
	usernames      map[string]string
}

func (f *fakeNakama) MatchGet(ctx context.Context, id string) (*api.Match, error) {
	return f.matches[id], nil
}

func (f *fakeNakama) MatchList(ctx context.Context, limit int, authoritative bool, label string, minSize, maxSize *int, query string) ([]*api.Match, error) {
	f.listQuery = query
	if maxSize != nil {
		f.listMaxSize = *maxSize
	}
	return f.listed, nil
}

func (f *fakeNakama) MatchCreate(ctx context.Context, module string, params map[string]interface{}) (string, error) {
	f.created = append(f.created, module)
	return "new-match", nil
}

func (f *fakeNakama) AccountGetId(ctx context.Context, userID string) (*api.Account, error) {
	return &api.Account{User: &api.User{Id: userID}, Wallet: f.wallet}, nil
}

func (f *fakeNakama) AccountUpdateId(ctx context.Context, userID, username string, metadata map[string]interface{}, displayName, timezone, location, langTag, avatarUrl string) error {
	if f.takenUsernames[username] {
		return errors.New("username is already in use")
	}
	if f.usernames == nil {
		f.usernames = make(map[string]string)
	}
	f.usernames[userID] = username
	return nil
}

func (f *fakeNakama) WalletsUpdate(ctx context.Context, updates []*runtime.WalletUpdate, updateLedger bool) ([]*runtime.WalletUpdateResult, error) {
	f.walletUpdates = append(f.walletUpdates, updates...)
	return nil, nil
}

func (f *fakeNakama) MultiUpdate(ctx context.Context, accountUpdates []*runtime.AccountUpdate, storageWrites []*runtime.StorageWrite, storageDeletes []*runtime.StorageDelete, walletUpdates []*runtime.WalletUpdate, updateLedger bool) ([]*api.StorageObjectAck, []*runtime.WalletUpdateResult, error) {
	if f.multiErr != nil {
		return nil, nil, f.multiErr
	}
	f.storageWrites = append(f.storageWrites, storageWrites...)
	f.walletUpdates = append(f.walletUpdates, walletUpdates...)
	return nil, nil, nil
}

type fakeActiveGames map[string]string

func (f fakeActiveGames) UserActiveGame(ctx context.Context, userID string) (string, error) {
	return f[userID], nil
}

type fakeStats struct {
	players []database.PlayerStats
	games   map[string][]app.RoundResult
	limit   int
}

func (f *fakeStats) Stats(ctx context.Context, playerID string) (database.PlayerStats, error) {
	for _, p := range f.players {
		if p.PlayerID == playerID {
			return p, nil
		}
	}
	return database.PlayerStats{}, database.ErrPlayerNotFound
}

func (f *fakeStats) Leaderboard(ctx context.Context, limit, offset int) ([]database.PlayerStats, error) {
	f.limit = limit
	return f.players, nil
}

func (f *fakeStats) GameRounds(ctx context.Context, gameID string) ([]app.RoundResult, error) {
	return f.games[gameID], nil
}

// fakeCache serves cached games keyed by match and game id.
type fakeCache struct {
	active   map[string]string
	games    map[string]string
	states   map[string]app.Snapshot
	hands    map[string][]domain.Card
	extended []string
}

func (f *fakeCache) UserActiveGame(ctx context.Context, userID string) (string, error) {
	return f.active[userID], nil
}

func (f *fakeCache) MatchGame(ctx context.Context, matchID string) (string, error) {
	return f.games[matchID], nil
}

func (f *fakeCache) LoadGame(ctx context.Context, gameID string) (app.Snapshot, error) {
	s, ok := f.states[gameID]
	if !ok {
		return app.Snapshot{}, cache.ErrNotFound
	}
	return s, nil
}

func (f *fakeCache) LoadHand(ctx context.Context, gameID, playerID string) ([]domain.Card, error) {
	return f.hands[playerID], nil
}

func (f *fakeCache) ExtendTTL(ctx context.Context, gameID string, d time.Duration) error {
	f.extended = append(f.extended, gameID)
	return nil
}

func userContext(userID string) context.Context {
	return context.WithValue(context.Background(), runtime.RUNTIME_CTX_USER_ID, userID)
}

func decodeQuickMatch(t *testing.T, out string) QuickMatchResponse {
	t.Helper()
	var resp QuickMatchResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("Bad quick match response %q: %v", out, err)
	}
	return resp
}

func TestQuickMatch_JoinsOpenLobby(t *testing.T) {
	nk := &fakeNakama{listed: []*api.Match{{MatchId: "lobby-1"}}}
	rpc := rpcQuickMatch(Dependencies{}, 4)

	out, err := rpc(userContext("user-1"), noopLogger{}, nil, nk, "")
	if err != nil {
		t.Fatalf("quick_match error: %v", err)
	}

	resp := decodeQuickMatch(t, out)
	if resp.MatchID != "lobby-1" || resp.IsNew || resp.Rejoin {
		t.Fatalf("Unexpected response %+v", resp)
	}
	if nk.listQuery != "+label.game:daifugo +label.phase:lobby +label.open:>=1" {
		t.Fatalf("Unexpected query %q", nk.listQuery)
	}
	if nk.listMaxSize != 3 {
		t.Fatalf("Expected max size 3, got %d", nk.listMaxSize)
	}
}

func TestQuickMatch_CreatesMatchWhenNoneOpen(t *testing.T) {
	nk := &fakeNakama{}
	rpc := rpcQuickMatch(Dependencies{}, 4)

	out, err := rpc(userContext("user-1"), noopLogger{}, nil, nk, "")
	if err != nil {
		t.Fatalf("quick_match error: %v", err)
	}

	resp := decodeQuickMatch(t, out)
	if resp.MatchID != "new-match" || !resp.IsNew {
		t.Fatalf("Unexpected response %+v", resp)
	}
	if len(nk.created) != 1 || nk.created[0] != MatchNameDaifugo {
		t.Fatalf("Expected one %s match, got %v", MatchNameDaifugo, nk.created)
	}
}

func TestQuickMatch_RejoinsActiveGame(t *testing.T) {
	nk := &fakeNakama{
		matches: map[string]*api.Match{"match-7": {MatchId: "match-7"}},
		listed:  []*api.Match{{MatchId: "lobby-1"}},
	}
	deps := Dependencies{ActiveGames: fakeActiveGames{"user-1": "match-7", "user-2": "match-gone"}}
	rpc := rpcQuickMatch(deps, 4)

	out, err := rpc(userContext("user-1"), noopLogger{}, nil, nk, "")
	if err != nil {
		t.Fatalf("quick_match error: %v", err)
	}
	if resp := decodeQuickMatch(t, out); resp.MatchID != "match-7" || !resp.Rejoin {
		t.Fatalf("Expected rejoin of match-7, got %+v", resp)
	}

	out, err = rpc(userContext("user-2"), noopLogger{}, nil, nk, "")
	if err != nil {
		t.Fatalf("quick_match error: %v", err)
	}
	if resp := decodeQuickMatch(t, out); resp.MatchID != "lobby-1" || resp.Rejoin {
		t.Fatalf("Expected lobby for a finished match, got %+v", resp)
	}
}

func TestPlayerStats(t *testing.T) {
	stats := &fakeStats{players: []database.PlayerStats{{PlayerID: "user-1", Username: "alice", RoundsWon: 2}}}
	rpc := rpcPlayerStats(stats)

	out, err := rpc(userContext("user-1"), noopLogger{}, nil, nil, "")
	if err != nil {
		t.Fatalf("player_stats error: %v", err)
	}
	var got database.PlayerStats
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Username != "alice" || got.RoundsWon != 2 {
		t.Fatalf("Unexpected stats %+v", got)
	}

	_, err = rpc(userContext("user-1"), noopLogger{}, nil, nil, `{"user_id":"nobody"}`)
	var rtErr *runtime.Error
	if !errors.As(err, &rtErr) || rtErr.Code != rpcNotFound {
		t.Fatalf("Expected not found error, got %v", err)
	}

	_, err = rpc(context.Background(), noopLogger{}, nil, nil, "")
	if !errors.As(err, &rtErr) || rtErr.Code != rpcInvalidArgument {
		t.Fatalf("Expected invalid argument without a user, got %v", err)
	}

	_, err = rpc(userContext("user-1"), noopLogger{}, nil, nil, "{")
	if !errors.As(err, &rtErr) || rtErr.Code != rpcInvalidArgument {
		t.Fatalf("Expected invalid argument for bad JSON, got %v", err)
	}
}

func TestLeaderboard_CapsPageSize(t *testing.T) {
	stats := &fakeStats{players: []database.PlayerStats{{PlayerID: "user-1", Position: 1}}}
	rpc := rpcLeaderboard(stats)

	out, err := rpc(context.Background(), noopLogger{}, nil, nil, `{"limit":5000}`)
	if err != nil {
		t.Fatalf("leaderboard error: %v", err)
	}
	if stats.limit != maxLeaderboardPage {
		t.Fatalf("Expected limit %d, got %d", maxLeaderboardPage, stats.limit)
	}

	var resp leaderboardResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Players) != 1 || resp.Players[0].Position != 1 {
		t.Fatalf("Unexpected leaderboard %+v", resp)
	}
}

func TestGameRounds(t *testing.T) {
	stats := &fakeStats{games: map[string][]app.RoundResult{
		"g1": {{Round: 1, Standings: []app.Standing{{PlayerID: "user-1", Rank: 1}}}},
	}}
	rpc := rpcGameRounds(stats)

	out, err := rpc(context.Background(), noopLogger{}, nil, nil, `{"game_id":"g1"}`)
	if err != nil {
		t.Fatalf("game_rounds error: %v", err)
	}
	var resp gameRoundsResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.GameID != "g1" || len(resp.Rounds) != 1 || resp.Rounds[0].Standings[0].PlayerID != "user-1" {
		t.Fatalf("Unexpected rounds %+v", resp)
	}

	var rtErr *runtime.Error
	_, err = rpc(context.Background(), noopLogger{}, nil, nil, `{"game_id":"missing"}`)
	if !errors.As(err, &rtErr) || rtErr.Code != rpcNotFound {
		t.Fatalf("Expected not found for an unknown game, got %v", err)
	}
	_, err = rpc(context.Background(), noopLogger{}, nil, nil, "")
	if !errors.As(err, &rtErr) || rtErr.Code != rpcInvalidArgument {
		t.Fatalf("Expected invalid argument without a game id, got %v", err)
	}
}

func TestResumeGame(t *testing.T) {
	hand := []domain.Card{domain.NewDeck()[0]}
	fc := &fakeCache{
		active: map[string]string{"user-1": "match-1", "user-2": "match-2"},
		games:  map[string]string{"match-1": "g1", "match-2": "g-expired"},
		states: map[string]app.Snapshot{"g1": {GameID: "g1", GameState: domain.StatePlaying}},
		hands:  map[string][]domain.Card{"user-1": hand},
	}
	rpc := rpcResumeGame(fc)

	out, err := rpc(userContext("user-1"), noopLogger{}, nil, nil, "")
	if err != nil {
		t.Fatalf("resume_game error: %v", err)
	}
	var resp ResumeResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.MatchID != "match-1" || resp.State.GameID != "g1" || len(resp.Hand) != 1 || resp.Hand[0].ID != hand[0].ID {
		t.Fatalf("Unexpected resume response %+v", resp)
	}
	if len(fc.extended) != 1 || fc.extended[0] != "g1" {
		t.Fatalf("Expected g1 to be kept alive, got %v", fc.extended)
	}

	var rtErr *runtime.Error
	for _, user := range []string{"user-2", "user-3"} {
		_, err = rpc(userContext(user), noopLogger{}, nil, nil, "")
		if !errors.As(err, &rtErr) || rtErr.Code != rpcNotFound {
			t.Fatalf("Expected not found for %s, got %v", user, err)
		}
	}
	_, err = rpc(context.Background(), noopLogger{}, nil, nil, "")
	if !errors.As(err, &rtErr) || rtErr.Code != rpcInvalidArgument {
		t.Fatalf("Expected invalid argument without a user, got %v", err)
	}
}
