package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"daifugo/internal/app"
	"daifugo/internal/bot"
	"daifugo/internal/config"
	"daifugo/internal/domain"
	"daifugo/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/sirupsen/logrus"
)

// tickRate is one tick per second; every delay in GameConfig is in ticks.
const tickRate = 1

// MatchState holds the authoritative runtime state for the Nakama match handler.
type MatchState struct {
	MatchID   string
	Seats     []string                    // user id per seat, "" when empty
	OwnerSeat int                         // seat of the connected human who may start games, -1 if none
	Tick      int64                       // current tick
	Presences map[string]runtime.Presence // connected seated humans by user id
	Engine    *app.GameEngine             // nil while in the lobby

	HistorySeq       int    // last history entry broadcast
	RoundsReported   int    // round results broadcast so far
	TurnPlayerID     string // player the turn timer runs for
	TurnDeadline     int64  // tick at which TurnPlayerID times out
	ExchangeDeadline int64  // tick at which pending human exchanges are auto-submitted

	BotsEnabled          bool
	LastSinglePlayerTick int64                 // tick when a single player started waiting
	Bots                 map[string]*bot.Agent // agents for bot seats and for humans who left mid-game

	Config    config.GameConfig
	Rng       *rand.Rand
	Pool      *bot.Pool
	Ratings   ports.RatingPort
	Results   ports.ResultsPort
	Snapshots ports.SnapshotStore
	EngineLog logrus.FieldLogger

	label string // last label sent
}

func (ms *MatchState) GetOpenSeatsCount() int {
	count := 0
	for _, seat := range ms.Seats {
		if seat == "" {
			count++
		}
	}
	return count
}

func (ms *MatchState) GetOccupiedSeatCount() int {
	count := 0
	for _, seat := range ms.Seats {
		if seat != "" {
			count++
		}
	}
	return count
}

// GetHumanPlayerCount counts seated humans that are connected.
func (ms *MatchState) GetHumanPlayerCount() int {
	count := 0
	for _, seat := range ms.Seats {
		if _, ok := ms.Presences[seat]; seat != "" && ok {
			count++
		}
	}
	return count
}

func (ms *MatchState) seatOf(userID string) int {
	for i, seat := range ms.Seats {
		if seat != "" && seat == userID {
			return i
		}
	}
	return -1
}

func (ms *MatchState) firstOpenSeat() int {
	for i, seat := range ms.Seats {
		if seat == "" {
			return i
		}
	}
	return -1
}

func (ms *MatchState) firstBotSeat() int {
	for i, seat := range ms.Seats {
		if ms.isBot(seat) {
			return i
		}
	}
	return -1
}

func (ms *MatchState) isBot(userID string) bool {
	return userID != "" && ms.Pool != nil && ms.Pool.IsBot(userID)
}

func (ms *MatchState) identity(userID string) (bot.BotIdentity, bool) {
	if ms.Pool == nil {
		return bot.BotIdentity{}, false
	}
	return ms.Pool.Lookup(userID)
}

func (ms *MatchState) displayName(userID string) string {
	if p, ok := ms.Presences[userID]; ok && p.GetUsername() != "" {
		return p.GetUsername()
	}
	if ms.Pool != nil {
		if name := ms.Pool.DisplayName(userID); name != "" {
			return name
		}
	}
	return userID
}

// findFirstHumanSeat returns the first seat whose occupant is connected, or -1.
func findFirstHumanSeat(seats []string, connected map[string]runtime.Presence) int {
	for i, userID := range seats {
		if _, ok := connected[userID]; userID != "" && ok {
			return i
		}
	}
	return -1
}

// shouldTerminateNoHumans returns true when no seated human is connected.
func shouldTerminateNoHumans(seats []string, connected map[string]runtime.Presence) bool {
	return findFirstHumanSeat(seats, connected) == -1
}

// Dependencies are the stores shared by every match. Nil stores are skipped.
type Dependencies struct {
	Env         config.Env
	Results     ports.ResultsPort
	Snapshots   ports.SnapshotStore
	ActiveGames ActiveGameLookup
	Resume      SnapshotReader
	Stats       StatsReader
}

type matchHandler struct {
	deps Dependencies
}

func newMatchHandler(deps Dependencies) *matchHandler {
	return &matchHandler{deps: deps}
}

// newMatchState builds an empty lobby.
func (mh *matchHandler) newMatchState(matchID string, cfg config.GameConfig, logger runtime.Logger) *MatchState {
	return &MatchState{
		MatchID:     matchID,
		Seats:       make([]string, cfg.Seats),
		OwnerSeat:   -1,
		Presences:   make(map[string]runtime.Presence),
		BotsEnabled: mh.deps.Env.BotsEnabled,
		Bots:        make(map[string]*bot.Agent),
		Config:      cfg,
		Rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		Pool:        bot.Default(),
		Results:     mh.deps.Results,
		Snapshots:   mh.deps.Snapshots,
		EngineLog:   newBridgeLogger(logger, parseLevel(mh.deps.Env.LogLevel)).WithField("match_id", matchID),
	}
}

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	matchID, _ := ctx.Value(runtime.RUNTIME_CTX_MATCH_ID).(string)
	logger.Debug("MatchInit: Initializing match %s.", matchID)

	state := mh.newMatchState(matchID, config.GetGameConfig(), logger)
	state.Ratings = NewNakamaRatingAdapter(nk)

	label, err := matchLabel(state.GetOpenSeatsCount(), phaseLobby, 0)
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}
	state.label = label

	return state, tickRate, label
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	// Players who dropped out mid-game may always come back to their seat.
	if matchState.seatOf(presence.GetUserId()) >= 0 {
		return state, true, ""
	}
	if matchState.Engine != nil {
		return state, false, "Game in progress"
	}
	if matchState.GetOpenSeatsCount() <= 0 && matchState.firstBotSeat() < 0 {
		return state, false, "Match full"
	}

	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	var rejoined []string
	for _, p := range presences {
		userID := p.GetUserId()

		if matchState.seatOf(userID) >= 0 {
			matchState.Presences[userID] = p
			mh.reclaimSeat(ctx, matchState, logger, userID)
			rejoined = append(rejoined, userID)
			continue
		}

		seat := matchState.firstOpenSeat()
		if seat < 0 && matchState.Engine == nil {
			if seat = matchState.firstBotSeat(); seat >= 0 {
				logger.Info("MatchJoin: Replacing bot %s with human %s in seat %d", matchState.Seats[seat], userID, seat)
				delete(matchState.Bots, matchState.Seats[seat])
			}
		}
		if seat < 0 {
			logger.Warn("MatchJoin: User %s joined but no seat (empty or bot) was available.", userID)
			continue
		}
		matchState.Seats[seat] = userID
		matchState.Presences[userID] = p
	}

	// Ensure owner seat is assigned to a connected human only.
	if _, ok := matchState.ownerPresence(); !ok {
		matchState.OwnerSeat = findFirstHumanSeat(matchState.Seats, matchState.Presences)
		if matchState.OwnerSeat >= 0 {
			logger.Debug("MatchJoin: Owner set to human seat %d.", matchState.OwnerSeat)
		}
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastLobby(matchState, dispatcher, logger, nil)

	for _, userID := range rejoined {
		if matchState.Engine == nil {
			continue
		}
		p := matchState.Presences[userID]
		mh.broadcastGameState(matchState, dispatcher, logger, []runtime.Presence{p})
		mh.sendHand(matchState, dispatcher, logger, userID)
	}

	return matchState
}

func (ms *MatchState) ownerPresence() (runtime.Presence, bool) {
	if ms.OwnerSeat < 0 || ms.OwnerSeat >= len(ms.Seats) {
		return nil, false
	}
	p, ok := ms.Presences[ms.Seats[ms.OwnerSeat]]
	return p, ok
}

// reclaimSeat gives a reconnecting human their seat back from the CPU.
func (mh *matchHandler) reclaimSeat(ctx context.Context, state *MatchState, logger runtime.Logger, userID string) {
	delete(state.Bots, userID)
	if state.Engine == nil {
		return
	}
	if err := state.Engine.SetPlayerKind(userID, domain.KindHuman); err != nil {
		logger.Warn("MatchJoin: User %s is seated but not in game %s: %v", userID, state.Engine.GameID(), err)
		return
	}
	if state.Snapshots != nil {
		if err := state.Snapshots.SetUserActiveGame(ctx, userID, state.MatchID); err != nil {
			logger.Warn("MatchJoin: Failed to record active game for %s: %v", userID, err)
		}
	}
	logger.Info("MatchJoin: User %s reclaimed their seat in game %s.", userID, state.Engine.GameID())
}

// MatchLeave is called when one or more players leave the match.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		delete(matchState.Presences, userID)

		seat := matchState.seatOf(userID)
		if seat < 0 {
			continue
		}
		if matchState.Engine == nil {
			matchState.Seats[seat] = ""
			logger.Debug("MatchLeave: User %s left, seat %d freed.", userID, seat)
			continue
		}
		mh.handOverToBot(matchState, logger, userID)
	}

	newOwnerSeat := findFirstHumanSeat(matchState.Seats, matchState.Presences)
	if newOwnerSeat != matchState.OwnerSeat {
		matchState.OwnerSeat = newOwnerSeat
		if newOwnerSeat >= 0 {
			logger.Debug("MatchLeave: Owner set to human seat %d.", newOwnerSeat)
		}
	}

	if shouldTerminateNoHumans(matchState.Seats, matchState.Presences) {
		logger.Info("MatchLeave: Terminating match with no humans.")
		mh.abandonGame(ctx, matchState, logger)
		return nil
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastLobby(matchState, dispatcher, logger, nil)

	return matchState
}

// handOverToBot keeps a departed human's seat in play under CPU control.
func (mh *matchHandler) handOverToBot(state *MatchState, logger runtime.Logger, userID string) {
	if err := state.Engine.SetPlayerKind(userID, domain.KindBot); err != nil {
		logger.Warn("MatchLeave: User %s left but is not in game: %v", userID, err)
		return
	}
	agent, err := bot.NewAgent(bot.BotIdentity{
		UserID:      userID,
		DisplayName: state.displayName(userID),
		Level:       bot.LevelMedium,
	}, state.Rng)
	if err != nil {
		logger.Error("MatchLeave: Failed to create stand-in agent for %s: %v", userID, err)
		return
	}
	state.Bots[userID] = agent
	logger.Info("MatchLeave: User %s left mid-game, CPU takes over.", userID)
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	matchState.Tick = tick

	for _, msg := range messages {
		switch msg.GetOpCode() {
		case OpStartGame:
			mh.handleStartGame(ctx, matchState, dispatcher, logger, msg)
		case OpPlayCards:
			mh.handlePlayCards(ctx, matchState, dispatcher, logger, msg)
		case OpPassTurn:
			mh.handlePassTurn(ctx, matchState, dispatcher, logger, msg)
		case OpExchangeCards:
			mh.handleExchangeCards(ctx, matchState, dispatcher, logger, msg)
		case OpRequestState:
			mh.handleRequestState(matchState, dispatcher, logger, msg)
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		}
	}

	mh.processBots(ctx, matchState, dispatcher, logger)
	mh.processTurnTimer(ctx, matchState, dispatcher, logger)

	return matchState
}

func (mh *matchHandler) processBots(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if state.Engine == nil {
		if state.BotsEnabled {
			mh.autoFillLobby(state, dispatcher, logger)
		}
		return
	}

	var actorID string
	switch state.Engine.State() {
	case domain.StatePlaying:
		id, kind := state.Engine.CurrentPlayer()
		if kind != domain.KindBot {
			return
		}
		actorID = id
	case domain.StateCardExchange:
		actorID = pendingBotDonor(state.Engine)
	}
	if actorID == "" {
		return
	}

	agent, err := mh.ensureAgent(state, actorID)
	if err != nil {
		logger.Error("processBots: Failed to create agent for %s: %v", actorID, err)
		return
	}
	if !agent.Ready(state.Tick, state.Rng, state.Config.BotMinDelaySeconds, state.Config.BotMaxDelaySeconds) {
		return
	}

	action, err := agent.Act(state.Engine)
	if err != nil {
		logger.Error("processBots: Bot %s failed to act: %v", actorID, err)
		return
	}
	logger.Debug("processBots: Bot %s did %s with %d cards.", actorID, action.Action, len(action.Cards))
	mh.afterMove(ctx, state, dispatcher, logger)
}

// autoFillLobby seats bots next to a lone human once the auto-fill delay passes.
func (mh *matchHandler) autoFillLobby(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if state.GetHumanPlayerCount() != 1 {
		state.LastSinglePlayerTick = 0
		return
	}
	if state.LastSinglePlayerTick == 0 {
		state.LastSinglePlayerTick = state.Tick
		logger.Debug("processBots: Single player detected, starting auto-fill timer.")
	}
	if state.Tick-state.LastSinglePlayerTick < int64(state.Config.BotAutoFillDelaySeconds) {
		return
	}

	added := false
	for i, seat := range state.Seats {
		if seat != "" {
			continue
		}
		identity := state.Pool.Identity(i)
		if state.seatOf(identity.UserID) >= 0 {
			continue
		}
		state.Seats[i] = identity.UserID

		agent, err := bot.NewAgent(identity, state.Rng)
		if err != nil {
			logger.Error("Failed to create bot agent for %s: %v", identity.UserID, err)
		} else {
			state.Bots[identity.UserID] = agent
		}

		logger.Info("processBots: Added bot %s (%s) to seat %d", identity.DisplayName, identity.UserID, i)
		added = true
	}
	if added {
		mh.updateLabel(state, dispatcher, logger)
		mh.broadcastLobby(state, dispatcher, logger, nil)
	}
	// Reset so a seat freed later restarts the wait.
	state.LastSinglePlayerTick = 0
}

// ensureAgent returns the agent driving userID, creating one on demand.
func (mh *matchHandler) ensureAgent(state *MatchState, userID string) (*bot.Agent, error) {
	if agent, ok := state.Bots[userID]; ok {
		return agent, nil
	}
	identity, ok := state.identity(userID)
	if !ok {
		identity = bot.BotIdentity{UserID: userID, DisplayName: state.displayName(userID), Level: bot.LevelMedium}
	}
	agent, err := bot.NewAgent(identity, state.Rng)
	if err != nil {
		return nil, err
	}
	state.Bots[userID] = agent
	return agent, nil
}

// pendingBotDonor returns a CPU seat that still owes cards, or "".
func pendingBotDonor(e *app.GameEngine) string {
	snapshot := e.GetGameState()
	for _, ex := range snapshot.CardExchange {
		if ex.Completed {
			continue
		}
		if p, ok := snapshot.Player(ex.FromPlayerID); ok && p.Kind == domain.KindBot {
			return ex.FromPlayerID
		}
	}
	return ""
}

// processTurnTimer plays for humans who let their turn or exchange run out.
func (mh *matchHandler) processTurnTimer(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	e := state.Engine
	if e == nil || state.Config.TurnDurationSeconds <= 0 {
		return
	}

	switch e.State() {
	case domain.StatePlaying:
		id, kind := e.CurrentPlayer()
		if kind != domain.KindHuman || id != state.TurnPlayerID || state.Tick < state.TurnDeadline {
			return
		}
		logger.Info("TurnTimer: %s ran out of time, playing automatically.", id)
		if err := autoPlay(e, id); err != nil {
			logger.Error("TurnTimer: Automatic move for %s failed: %v", id, err)
			return
		}
	case domain.StateCardExchange:
		if state.ExchangeDeadline == 0 || state.Tick < state.ExchangeDeadline {
			return
		}
		for _, ex := range e.GetGameState().CardExchange {
			if ex.Completed {
				continue
			}
			cards, err := e.StrongestCards(ex.FromPlayerID, ex.Count)
			if err == nil {
				err = e.ExchangeCards(ex.FromPlayerID, cards)
			}
			if err != nil {
				logger.Error("TurnTimer: Automatic exchange for %s failed: %v", ex.FromPlayerID, err)
				return
			}
			logger.Info("TurnTimer: %s ran out of time, exchange submitted automatically.", ex.FromPlayerID)
		}
	default:
		return
	}
	mh.afterMove(ctx, state, dispatcher, logger)
}

// autoPlay makes the CPU take one greedy turn for a human seat.
func autoPlay(e *app.GameEngine, playerID string) error {
	if err := e.SetPlayerKind(playerID, domain.KindBot); err != nil {
		return err
	}
	defer func() { _ = e.SetPlayerKind(playerID, domain.KindHuman) }()
	_, err := e.ExecuteCPUTurnWith(bot.GreedyPolicy{})
	return err
}

func (mh *matchHandler) handleStartGame(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	senderSeat := state.seatOf(senderID)

	logger.Info("StartGame: Request received from %s (seat=%d, owner_seat=%d, occupied=%d)", senderID, senderSeat, state.OwnerSeat, state.GetOccupiedSeatCount())

	if state.Engine != nil {
		mh.sendError(state, dispatcher, logger, senderID, errCodeConflict, "game already running")
		return
	}

	request := StartGameRequest{}
	if err := decodePayload(msg.GetData(), &request); err != nil {
		logger.Warn("StartGame: Invalid StartGameRequest from %s: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, errCodeBadRequest, "invalid start game request")
		return
	}

	if senderSeat < 0 || senderSeat != state.OwnerSeat {
		logger.Warn("StartGame: User %s tried to start game but is not owner (owner_seat=%d)", senderID, state.OwnerSeat)
		mh.sendError(state, dispatcher, logger, senderID, errCodeForbidden, "only the match owner can start the game")
		return
	}

	activeCount := state.GetOccupiedSeatCount()
	if activeCount < app.MinPlayersToStartGame {
		logger.Warn("StartGame: Cannot start with %d players. Need at least %d.", activeCount, app.MinPlayersToStartGame)
		mh.sendError(state, dispatcher, logger, senderID, errCodeConflict, app.ErrTooFewPlayers.Error())
		return
	}

	rules, err := state.Config.Rules(request.Rules)
	if err != nil {
		logger.Warn("StartGame: Invalid rules from %s: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, errCodeBadRequest, err.Error())
		return
	}

	if err := mh.startGame(ctx, state, dispatcher, logger, rules); err != nil {
		logger.Error("StartGame: Failed to start game: %v", err)
		mh.sendError(state, dispatcher, logger, senderID, errorCode(err), err.Error())
	}
}

// startGame seats every occupied seat in a new engine and deals.
func (mh *matchHandler) startGame(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, rules domain.RuleSettings) error {
	seeds := make([]domain.PlayerSeed, 0, len(state.Seats))
	for _, userID := range state.Seats {
		if userID == "" {
			continue
		}
		if identity, ok := state.identity(userID); ok {
			seeds = append(seeds, identity.Seed())
			continue
		}
		seeds = append(seeds, domain.PlayerSeed{ID: userID, Username: state.displayName(userID), Kind: domain.KindHuman})
	}

	engine := app.NewEngine(
		app.WithRand(state.Rng),
		app.WithLogger(state.EngineLog),
		app.WithHistorySize(state.Config.HistorySize),
	)
	if err := engine.InitializeGame(seeds, &rules); err != nil {
		return err
	}

	state.Engine = engine
	state.HistorySeq = 0
	state.RoundsReported = 0
	state.TurnPlayerID = ""
	state.TurnDeadline = 0
	state.ExchangeDeadline = 0

	if state.Snapshots != nil {
		if err := state.Snapshots.SetMatchGame(ctx, state.MatchID, engine.GameID()); err != nil {
			logger.Warn("StartGame: Failed to index game %s: %v", engine.GameID(), err)
		}
	}
	for _, seed := range seeds {
		if seed.Kind == domain.KindBot {
			if _, err := mh.ensureAgent(state, seed.ID); err != nil {
				logger.Error("StartGame: Failed to create agent for %s: %v", seed.ID, err)
			}
			continue
		}
		if state.Snapshots != nil {
			if err := state.Snapshots.SetUserActiveGame(ctx, seed.ID, state.MatchID); err != nil {
				logger.Warn("StartGame: Failed to record active game for %s: %v", seed.ID, err)
			}
		}
	}

	logger.Info("StartGame: Game %s started with %d players.", engine.GameID(), len(seeds))
	mh.afterMove(ctx, state, dispatcher, logger)
	return nil
}

func (mh *matchHandler) handlePlayCards(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	if state.Engine == nil {
		logger.Warn("handlePlayCards: Game not started.")
		mh.sendError(state, dispatcher, logger, senderID, errCodeConflict, app.ErrNotPlaying.Error())
		return
	}

	request := CardsRequest{}
	if err := decodePayload(msg.GetData(), &request); err != nil {
		logger.Warn("handlePlayCards: Failed to unmarshal request from %s: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, errCodeBadRequest, "invalid play cards request")
		return
	}

	if _, err := state.Engine.PlayCards(senderID, domain.CardsFromIDs(request.CardIDs)); err != nil {
		mh.rejectMove(state, dispatcher, logger, "handlePlayCards", senderID, err)
		return
	}
	mh.afterMove(ctx, state, dispatcher, logger)
}

func (mh *matchHandler) handlePassTurn(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	if state.Engine == nil {
		logger.Warn("handlePassTurn: Game not started.")
		mh.sendError(state, dispatcher, logger, senderID, errCodeConflict, app.ErrNotPlaying.Error())
		return
	}

	if _, err := state.Engine.Pass(senderID); err != nil {
		mh.rejectMove(state, dispatcher, logger, "handlePassTurn", senderID, err)
		return
	}
	mh.afterMove(ctx, state, dispatcher, logger)
}

func (mh *matchHandler) handleExchangeCards(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	if state.Engine == nil {
		logger.Warn("handleExchangeCards: Game not started.")
		mh.sendError(state, dispatcher, logger, senderID, errCodeConflict, app.ErrNotExchanging.Error())
		return
	}

	request := CardsRequest{}
	if err := decodePayload(msg.GetData(), &request); err != nil {
		logger.Warn("handleExchangeCards: Failed to unmarshal request from %s: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, errCodeBadRequest, "invalid exchange request")
		return
	}

	if err := state.Engine.ExchangeCards(senderID, domain.CardsFromIDs(request.CardIDs)); err != nil {
		mh.rejectMove(state, dispatcher, logger, "handleExchangeCards", senderID, err)
		return
	}
	mh.afterMove(ctx, state, dispatcher, logger)
}

// handleRequestState resends everything a client needs to redraw.
func (mh *matchHandler) handleRequestState(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	p, ok := state.Presences[msg.GetUserId()]
	if !ok {
		return
	}
	recipients := []runtime.Presence{p}
	mh.broadcastLobby(state, dispatcher, logger, recipients)
	if state.Engine != nil {
		mh.broadcastGameState(state, dispatcher, logger, recipients)
		mh.sendHand(state, dispatcher, logger, p.GetUserId())
	}
}

func (mh *matchHandler) rejectMove(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, handler, userID string, err error) {
	code := errorCode(err)
	if code == errCodeInternal {
		logger.Error("%s: Engine invariant broken for %s: %v", handler, userID, err)
	} else {
		logger.Warn("%s: User %s move rejected: %v", handler, userID, err)
	}
	mh.sendError(state, dispatcher, logger, userID, code, err.Error())
}

// afterMove publishes everything a state change produced: new history,
// finished rounds, the public snapshot and private hands. It settles the
// game once the engine reports it finished.
func (mh *matchHandler) afterMove(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	e := state.Engine
	if e == nil {
		return
	}

	if entries := e.HistorySince(state.HistorySeq); len(entries) > 0 {
		mh.send(dispatcher, logger, OpHistory, HistoryMessage{Entries: entries}, nil)
		state.HistorySeq = e.LastHistorySeq()
	}

	results := e.Results()
	for ; state.RoundsReported < len(results); state.RoundsReported++ {
		mh.send(dispatcher, logger, OpRoundEnded, RoundEndedMessage{Result: results[state.RoundsReported]}, nil)
	}

	mh.resetTurnTimer(state)
	mh.broadcastGameState(state, dispatcher, logger, nil)
	for userID := range state.Presences {
		mh.sendHand(state, dispatcher, logger, userID)
	}

	if e.State() == domain.StateFinished {
		mh.finishGame(ctx, state, dispatcher, logger)
		return
	}

	mh.saveSnapshot(ctx, state, logger)
	mh.updateLabel(state, dispatcher, logger)
}

// resetTurnTimer restarts the clock after every accepted move.
func (mh *matchHandler) resetTurnTimer(state *MatchState) {
	duration := int64(state.Config.TurnDurationSeconds)
	switch state.Engine.State() {
	case domain.StatePlaying:
		state.TurnPlayerID, _ = state.Engine.CurrentPlayer()
		state.TurnDeadline = state.Tick + duration
		state.ExchangeDeadline = 0
	case domain.StateCardExchange:
		state.TurnPlayerID = ""
		state.TurnDeadline = 0
		if state.ExchangeDeadline == 0 {
			state.ExchangeDeadline = state.Tick + duration
		}
	default:
		state.TurnPlayerID = ""
		state.TurnDeadline = 0
		state.ExchangeDeadline = 0
	}
}

func (ms *MatchState) turnSecondsRemaining() int64 {
	deadline := ms.TurnDeadline
	if ms.Engine != nil && ms.Engine.State() == domain.StateCardExchange {
		deadline = ms.ExchangeDeadline
	}
	if deadline <= ms.Tick {
		return 0
	}
	return deadline - ms.Tick
}

// finishGame settles ratings, records the results and returns to the lobby.
func (mh *matchHandler) finishGame(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	e := state.Engine
	results := e.Results()
	deltas := app.RatingDeltas(results, state.Config.RatingStep)

	if state.Ratings != nil {
		userIDs := make([]string, 0, len(deltas))
		for userID := range deltas {
			userIDs = append(userIDs, userID)
		}
		sort.Strings(userIDs)

		changes := make([]ports.RatingChange, 0, len(userIDs))
		for _, userID := range userIDs {
			if state.isBot(userID) {
				continue
			}
			changes = append(changes, ports.RatingChange{
				UserID: userID,
				Delta:  deltas[userID],
				Metadata: map[string]interface{}{
					"match_id": state.MatchID,
					"game_id":  e.GameID(),
					"reason":   "game_settlement",
				},
			})
		}
		if err := state.Ratings.ApplyRatings(ctx, changes); err != nil {
			logger.Error("GameEnded: Failed to apply ratings: %v", err)
		}
	}

	if state.Results != nil {
		record := ports.GameRecord{
			GameID:     e.GameID(),
			MatchID:    state.MatchID,
			Rules:      e.Rules(),
			Results:    results,
			RatingStep: state.Config.RatingStep,
			FinishedAt: time.Now(),
		}
		if err := state.Results.RecordGame(ctx, record); err != nil {
			logger.Error("GameEnded: Failed to record game %s: %v", e.GameID(), err)
		}
	}

	mh.send(dispatcher, logger, OpGameEnded, GameEndedMessage{
		GameID:       e.GameID(),
		Results:      results,
		RatingDeltas: deltas,
	}, nil)
	logger.Info("GameEnded: Game %s finished after %d rounds.", e.GameID(), len(results))

	mh.abandonGame(ctx, state, logger)

	// Seats of players who left during the game are released now.
	for i, userID := range state.Seats {
		if userID == "" || state.isBot(userID) {
			continue
		}
		if _, ok := state.Presences[userID]; !ok {
			state.Seats[i] = ""
			delete(state.Bots, userID)
		}
	}

	mh.updateLabel(state, dispatcher, logger)
	mh.broadcastLobby(state, dispatcher, logger, nil)
}

// abandonGame drops the running game and its cached copy.
func (mh *matchHandler) abandonGame(ctx context.Context, state *MatchState, logger runtime.Logger) {
	e := state.Engine
	if e == nil {
		return
	}
	if state.Snapshots != nil {
		if err := state.Snapshots.DeleteGame(ctx, e.GameID()); err != nil {
			logger.Warn("Failed to delete cached game %s: %v", e.GameID(), err)
		}
		for _, userID := range state.Seats {
			if userID == "" || state.isBot(userID) {
				continue
			}
			if err := state.Snapshots.ClearUserActiveGame(ctx, userID); err != nil {
				logger.Warn("Failed to clear active game for %s: %v", userID, err)
			}
		}
	}
	state.Engine = nil
	state.TurnPlayerID = ""
	state.TurnDeadline = 0
	state.ExchangeDeadline = 0
}

func (mh *matchHandler) saveSnapshot(ctx context.Context, state *MatchState, logger runtime.Logger) {
	if state.Snapshots == nil || state.Engine == nil {
		return
	}
	snapshot := state.Engine.GetGameState()
	hands := make(map[string][]domain.Card, len(snapshot.Players))
	for _, p := range snapshot.Players {
		cards, err := state.Engine.GetPlayerCards(p.ID)
		if err != nil {
			continue
		}
		hands[p.ID] = cards
	}
	if err := state.Snapshots.SaveGame(ctx, snapshot, hands); err != nil {
		logger.Warn("Failed to cache game %s: %v", snapshot.GameID, err)
	}
}

func (mh *matchHandler) broadcastLobby(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, recipients []runtime.Presence) {
	lobby := LobbyState{
		Seats:     append([]string(nil), state.Seats...),
		OwnerSeat: state.OwnerSeat,
		Tick:      state.Tick,
		Playing:   state.Engine != nil,
	}
	for i, userID := range state.Seats {
		if userID == "" {
			continue
		}
		_, connected := state.Presences[userID]
		view := SeatView{
			UserID:      userID,
			Seat:        i,
			IsOwner:     i == state.OwnerSeat,
			IsBot:       state.isBot(userID),
			Connected:   connected || state.isBot(userID),
			DisplayName: state.displayName(userID),
		}
		if identity, ok := state.identity(userID); ok {
			view.AvatarIndex = identity.AvatarIndex
		}
		lobby.Players = append(lobby.Players, view)
	}
	mh.send(dispatcher, logger, OpLobbyState, lobby, recipients)
}

func (mh *matchHandler) broadcastGameState(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, recipients []runtime.Presence) {
	if state.Engine == nil {
		return
	}
	mh.send(dispatcher, logger, OpGameState, GameStateMessage{
		State:                state.Engine.GetGameState(),
		TurnSecondsRemaining: state.turnSecondsRemaining(),
	}, recipients)
}

// sendHand sends a player their own hand and any exchange they owe.
func (mh *matchHandler) sendHand(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string) {
	presence, ok := state.Presences[userID]
	if !ok || state.Engine == nil {
		return
	}
	cards, err := state.Engine.GetPlayerCards(userID)
	if err != nil {
		return
	}
	msg := HandMessage{Cards: cards}
	if ex, ok := state.Engine.PendingExchange(userID); ok {
		required, err := state.Engine.StrongestCards(userID, ex.Count)
		if err == nil {
			msg.Exchange = &ExchangeDue{ToPlayerID: ex.ToPlayerID, Count: ex.Count, Required: required}
		}
	}
	mh.send(dispatcher, logger, OpHand, msg, []runtime.Presence{presence})
}

// sendError sends an ErrorMessage to a specific user.
func (mh *matchHandler) sendError(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, code int, message string) {
	presence, ok := state.Presences[userID]
	if !ok {
		logger.Warn("Cannot send error to %s: Presence not found", userID)
		return
	}
	mh.send(dispatcher, logger, OpError, ErrorMessage{Code: code, Message: message}, []runtime.Presence{presence})
}

// send marshals payload and delivers it to recipients, or to everyone when nil.
func (mh *matchHandler) send(dispatcher runtime.MatchDispatcher, logger runtime.Logger, opCode int64, payload interface{}, recipients []runtime.Presence) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal message %d: %v", opCode, err)
		return
	}
	if err := dispatcher.BroadcastMessage(opCode, data, recipients, nil, true); err != nil {
		logger.Error("Failed to send message %d: %v", opCode, err)
	}
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	open, phase, round := state.GetOpenSeatsCount(), phaseLobby, 0
	if state.Engine != nil {
		snapshot := state.Engine.GetGameState()
		open, phase, round = 0, string(snapshot.GameState), snapshot.CurrentRound
	}

	label, err := matchLabel(open, phase, round)
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if label == state.label {
		return
	}
	if err := dispatcher.MatchLabelUpdate(label); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
		return
	}
	state.label = label
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: Match terminating, grace %d seconds.", graceSeconds)
	if matchState, ok := state.(*MatchState); ok {
		mh.abandonGame(ctx, matchState, logger)
	}
	return state
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}
