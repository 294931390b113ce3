package app

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"daifugo/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GameEngine owns one game's rules and state. It is not safe for concurrent
// use; callers serialize access per game (see Registry).
type GameEngine struct {
	gameID string
	rules  domain.RuleSettings
	rng    *rand.Rand
	log    logrus.FieldLogger
	policy CPUPolicy
	now    func() time.Time

	state              domain.GameState
	players            []*domain.Player
	currentPlayerIndex int

	fieldCards    []domain.Card
	fieldStrength int
	fieldCount    int
	revolution    bool
	shibariActive bool
	lastSuit      domain.Suit
	discarded     int

	passCount     int
	lastPlayerID  string
	rankings      []string
	currentRound  int
	roundRankings []RoundRanking
	exchanges     []*CardExchange
	history       *History
	results       []RoundResult
}

// Option configures a GameEngine.
type Option func(*GameEngine)

// WithRand sets the random source used for shuffling and CPU choices.
func WithRand(rng *rand.Rand) Option {
	return func(e *GameEngine) { e.rng = rng }
}

// WithLogger sets the logger. Engine events are logged at debug level.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *GameEngine) { e.log = logger }
}

// WithGameID fixes the game id instead of generating a UUID.
func WithGameID(id string) Option {
	return func(e *GameEngine) { e.gameID = id }
}

// WithHistorySize sets how many history entries a snapshot carries.
func WithHistorySize(n int) Option {
	return func(e *GameEngine) { e.history = NewHistory(n) }
}

// WithCPUPolicy replaces the uniform random CPU policy.
func WithCPUPolicy(p CPUPolicy) Option {
	return func(e *GameEngine) { e.policy = p }
}

// WithClock overrides the time source for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *GameEngine) { e.now = now }
}

// NewEngine constructs an engine in the waiting state.
func NewEngine(opts ...Option) *GameEngine {
	e := &GameEngine{
		state: domain.StateWaiting,
		rules: domain.DefaultRuleSettings(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.log = l
	}
	if e.history == nil {
		e.history = NewHistory(DefaultHistorySize)
	}
	if e.gameID == "" {
		e.gameID = uuid.NewString()
	}
	e.log = e.log.WithField("game_id", e.gameID)
	return e
}

// GameID returns the engine's game id.
func (e *GameEngine) GameID() string {
	return e.gameID
}

// State returns the current lifecycle state.
func (e *GameEngine) State() domain.GameState {
	return e.state
}

// Rules returns the effective rule settings.
func (e *GameEngine) Rules() domain.RuleSettings {
	return e.rules
}

// InitializeGame seats players in input order and deals the first round.
// A nil rules value uses DefaultRuleSettings.
func (e *GameEngine) InitializeGame(seeds []domain.PlayerSeed, rules *domain.RuleSettings) error {
	if len(seeds) < MinPlayersToStartGame {
		return ErrTooFewPlayers
	}
	if len(seeds) > domain.MaxPlayers {
		return fmt.Errorf("%w: %d seats, max %d", ErrTooManyPlayers, len(seeds), domain.MaxPlayers)
	}
	effective := domain.DefaultRuleSettings()
	if rules != nil {
		effective = *rules
	}
	if err := effective.Validate(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(seeds))
	players := make([]*domain.Player, 0, len(seeds))
	for i, s := range seeds {
		if s.ID == "" {
			return ErrInvalidPlayerID
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePlayer, s.ID)
		}
		seen[s.ID] = struct{}{}
		kind := s.Kind
		if kind == "" {
			kind = domain.KindHuman
		}
		name := s.Username
		if name == "" {
			name = s.ID
		}
		players = append(players, &domain.Player{
			ID:          s.ID,
			Username:    name,
			Kind:        kind,
			PlayerOrder: i,
		})
	}

	e.rules = effective
	e.players = players
	e.results = nil
	e.roundRankings = nil
	e.currentRound = 1
	e.dealRound()
	e.currentPlayerIndex = 0
	e.state = domain.StatePlaying

	e.record(EventGameStarted, nil, nil, fmt.Sprintf("game started with %d players, %d round(s)", len(players), effective.Rounds))
	e.log.WithFields(logrus.Fields{
		"players": len(players),
		"rounds":  effective.Rounds,
	}).Info("game initialized")
	return nil
}

// dealRound shuffles a fresh deck and resets every round-scoped field.
func (e *GameEngine) dealRound() {
	deck := domain.NewDeck()
	domain.ShuffleDeck(deck, e.rng)
	hands := domain.Deal(deck, len(e.players))
	for i, p := range e.players {
		p.Cards = hands[i]
		p.IsActive = true
		p.Rank = 0
	}
	e.fieldCards = nil
	e.fieldCount = 0
	e.fieldStrength = 0
	e.revolution = false
	e.shibariActive = false
	e.lastSuit = ""
	e.discarded = 0
	e.passCount = 0
	e.lastPlayerID = ""
	e.rankings = nil
	e.exchanges = nil
}

// GetPlayerCards returns a copy of one player's hand.
func (e *GameEngine) GetPlayerCards(playerID string) ([]domain.Card, error) {
	p := e.player(playerID)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	return append([]domain.Card(nil), p.Cards...), nil
}

// SetPlayerKind hands a seat to the CPU or back to its human.
func (e *GameEngine) SetPlayerKind(playerID string, kind domain.PlayerKind) error {
	p := e.player(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	p.Kind = kind
	return nil
}

// CurrentPlayer returns the id and kind of the seat to act, or "" outside play.
func (e *GameEngine) CurrentPlayer() (string, domain.PlayerKind) {
	if e.state != domain.StatePlaying || len(e.players) == 0 {
		return "", ""
	}
	p := e.players[e.currentPlayerIndex]
	return p.ID, p.Kind
}

// NextActor returns the seat the game is waiting on: the current player
// during play, or the first donor with an open exchange between rounds.
func (e *GameEngine) NextActor() string {
	switch e.state {
	case domain.StatePlaying:
		id, _ := e.CurrentPlayer()
		return id
	case domain.StateCardExchange:
		for _, ex := range e.exchanges {
			if !ex.Completed {
				return ex.FromPlayerID
			}
		}
	}
	return ""
}

// Results returns per-round standings recorded so far.
func (e *GameEngine) Results() []RoundResult {
	out := make([]RoundResult, len(e.results))
	for i, r := range e.results {
		out[i] = r
		out[i].Standings = append([]Standing(nil), r.Standings...)
	}
	return out
}

// HistorySince returns retained history entries newer than seq.
func (e *GameEngine) HistorySince(seq int) []HistoryEntry {
	return e.history.Since(seq)
}

// LastHistorySeq is the sequence number of the newest history entry.
func (e *GameEngine) LastHistorySeq() int {
	return e.history.LastSeq()
}

func (e *GameEngine) player(id string) *domain.Player {
	for _, p := range e.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// advanceTurn moves the pointer to the next active seat after the current one.
func (e *GameEngine) advanceTurn() {
	n := len(e.players)
	for i := 1; i <= n; i++ {
		idx := (e.currentPlayerIndex + i) % n
		if e.players[idx].IsActive {
			e.currentPlayerIndex = idx
			return
		}
	}
}

func (e *GameEngine) clearField() {
	e.discarded += len(e.fieldCards)
	e.fieldCards = nil
	e.fieldCount = 0
	e.fieldStrength = 0
	e.passCount = 0
	e.shibariActive = false
	e.lastSuit = ""
}

func (e *GameEngine) record(kind EventKind, p *domain.Player, cards []domain.Card, msg string) {
	entry := HistoryEntry{
		Round:   e.currentRound,
		Kind:    kind,
		Cards:   append([]domain.Card(nil), cards...),
		Message: msg,
		At:      e.now().UTC(),
	}
	fields := logrus.Fields{"round": e.currentRound, "event": kind}
	if p != nil {
		entry.PlayerID = p.ID
		fields["player_id"] = p.ID
	}
	e.history.Add(entry)
	e.log.WithFields(fields).Debug(msg)
}

// invariantf reports a state breach loudly and returns an ErrInvariant error.
func (e *GameEngine) invariantf(format string, args ...any) error {
	err := fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
	e.log.WithFields(logrus.Fields{
		"round": e.currentRound,
		"state": e.state,
	}).WithError(err).Error("engine invariant violated")
	return err
}

// checkInvariants verifies card conservation and the turn pointer.
func (e *GameEngine) checkInvariants() error {
	total := e.discarded + len(e.fieldCards)
	for _, p := range e.players {
		total += len(p.Cards)
	}
	if total != domain.DeckSize {
		return e.invariantf("card count %d, want %d", total, domain.DeckSize)
	}
	if (e.fieldCount == 0) != (len(e.fieldCards) == 0) {
		return e.invariantf("field count %d with %d field cards", e.fieldCount, len(e.fieldCards))
	}
	if e.state == domain.StatePlaying && !e.players[e.currentPlayerIndex].IsActive {
		return e.invariantf("turn pointer on inactive seat %d", e.currentPlayerIndex)
	}
	return nil
}

func describe(cards []domain.Card) string {
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = c.String()
	}
	return strings.Join(names, " ")
}
