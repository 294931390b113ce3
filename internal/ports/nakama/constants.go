package nakama

const (
	// RpcQuickMatch is the Nakama RPC id clients call to find or create a lobby-capable match.
	RpcQuickMatch = "quick_match"

	// RpcPlayerStats returns the caller's (or a given user's) recorded statistics.
	RpcPlayerStats = "player_stats"

	// RpcLeaderboard returns a page of players ordered by rating.
	RpcLeaderboard = "leaderboard"

	// RpcGameRounds returns the recorded standings of a finished game.
	RpcGameRounds = "game_rounds"

	// RpcResumeGame returns the cached table and hand of the caller's running game.
	RpcResumeGame = "resume_game"

	// MatchNameDaifugo is the authoritative match handler name registered with Nakama.
	MatchNameDaifugo = "daifugo_match"

	// gameLabel is the value of the "game" key in every match label.
	gameLabel = "daifugo"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartGame     int64 = 1
	OpPlayCards     int64 = 2
	OpPassTurn      int64 = 3
	OpExchangeCards int64 = 4
	OpRequestState  int64 = 5

	// Server -> Client events
	OpLobbyState int64 = 101
	OpGameState  int64 = 102
	OpHand       int64 = 103 // send privately
	OpHistory    int64 = 104
	OpRoundEnded int64 = 105
	OpGameEnded  int64 = 106
	OpError      int64 = 107
)

// Error codes carried by OpError.
const (
	errCodeBadRequest = 400
	errCodeForbidden  = 403
	errCodeConflict   = 409
	errCodeInternal   = 500
)

// Match phases reported in the label.
const (
	phaseLobby = "lobby"
)
