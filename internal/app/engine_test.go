package app

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"daifugo/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeGameDealsHands(t *testing.T) {
	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b", "c", "d")
	snap := e.GetGameState()

	assert.Equal(t, domain.StatePlaying, snap.GameState)
	assert.Equal(t, "test-game", snap.GameID)
	assert.Equal(t, 0, snap.CurrentPlayerIndex)
	assert.Equal(t, "a", snap.CurrentPlayerID)
	assert.Equal(t, 1, snap.CurrentRound)
	assert.Equal(t, 1, snap.TotalRounds)
	assert.True(t, snap.Rules.Enable8Cut)
	assert.False(t, snap.Rules.EnableShibari)

	want := []int{14, 14, 13, 13}
	total := 0
	for i, p := range snap.Players {
		assert.Equal(t, i, p.PlayerOrder)
		assert.Equal(t, want[i], p.CardCount, "seat %d", i)
		assert.True(t, p.IsActive)
		total += p.CardCount

		hand, err := e.GetPlayerCards(p.ID)
		require.NoError(t, err)
		for j := 1; j < len(hand); j++ {
			assert.LessOrEqual(t, hand[j-1].Strength, hand[j].Strength)
		}
	}
	assert.Equal(t, domain.DeckSize, total)
}

func TestInitializeGameValidation(t *testing.T) {
	tests := []struct {
		name  string
		seeds []domain.PlayerSeed
		rules *domain.RuleSettings
		want  error
	}{
		{name: "one player", seeds: seeds(domain.KindHuman, "a"), want: ErrTooFewPlayers},
		{name: "too many", seeds: seeds(domain.KindHuman, "1", "2", "3", "4", "5", "6", "7", "8", "9"), want: ErrTooManyPlayers},
		{name: "duplicate", seeds: seeds(domain.KindHuman, "a", "a"), want: ErrDuplicatePlayer},
		{name: "empty id", seeds: seeds(domain.KindHuman, "a", ""), want: ErrInvalidPlayerID},
		{name: "zero rounds", seeds: seeds(domain.KindHuman, "a", "b"), rules: &domain.RuleSettings{}, want: domain.ErrInvalidRounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEngine().InitializeGame(tt.seeds, tt.rules)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCanPlayCardsTurnAndOwnership(t *testing.T) {
	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b", "c", "d")
	setHands(t, e,
		cards("spades_9", "hearts_9", "clubs_4"),
		cards("spades_K", "hearts_K"),
		cards("clubs_3"),
		cards("diamonds_3"),
	)

	assert.ErrorIs(t, e.CanPlayCards("b", cards("spades_K")), ErrNotYourTurn)
	assert.ErrorIs(t, e.CanPlayCards("z", cards("spades_K")), ErrUnknownPlayer)
	assert.ErrorIs(t, e.CanPlayCards("a", nil), ErrNoCards)
	assert.ErrorIs(t, e.CanPlayCards("a", cards("spades_K")), ErrCardNotInHand)
	assert.ErrorIs(t, e.CanPlayCards("a", cards("spades_9", "spades_9")), ErrDuplicateCard)

	// Only the id is trusted; a forged rank does not change the card.
	forged := []domain.Card{{ID: "clubs_4", Rank: "9"}}
	assert.ErrorIs(t, e.CanPlayCards("a", append(forged, cards("spades_9")...)), ErrRankMismatch)

	play(t, e, "a", "spades_9")
	assert.ErrorIs(t, e.CanPlayCards("b", cards("spades_K", "hearts_K")), ErrCountMismatch)
	assert.NoError(t, e.CanPlayCards("b", cards("spades_K")))
}

func TestFirstPlayRestriction(t *testing.T) {
	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b")
	setHands(t, e, cards("spades_4", "spades_5", "hearts_5", "hearts_6", "clubs_7"), cards("clubs_3"))

	err := e.CanPlayCards("a", cards("spades_4", "spades_5"))
	require.ErrorIs(t, err, ErrRankMismatch)
	assert.Contains(t, err.Error(), "opening play")

	assert.NoError(t, e.CanPlayCards("a", cards("spades_5", "hearts_5")))
	// Runs cannot open a trick even with sequences enabled.
	assert.ErrorIs(t, e.CanPlayCards("a", cards("spades_5", "hearts_6", "clubs_7")), ErrRankMismatch)
}

func TestRevolutionInvertsOrdering(t *testing.T) {
	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b", "c", "d")
	setHands(t, e,
		cards("spades_5", "hearts_5", "diamonds_5", "clubs_5", "spades_6", "spades_9"),
		cards("spades_4", "spades_7", "spades_K"),
		cards("hearts_3", "diamonds_3"),
		cards("spades_3", "hearts_Q"),
	)

	snap := play(t, e, "a", "spades_5", "hearts_5", "diamonds_5", "clubs_5")
	require.True(t, snap.Revolution)
	assert.True(t, hasEvent(snap, EventRevolution))

	pass(t, e, "b")
	pass(t, e, "c")
	snap = pass(t, e, "d")
	require.Equal(t, 0, snap.CurrentPlayerIndex)
	require.Zero(t, snap.FieldCount)

	play(t, e, "a", "spades_6")
	assert.NoError(t, e.CanPlayCards("b", cards("spades_4")))
	assert.ErrorIs(t, e.CanPlayCards("b", cards("spades_7")), ErrTooWeak)
	assert.ErrorIs(t, e.CanPlayCards("b", cards("spades_K")), ErrTooWeak)
}

func TestAllPassFlowsBackToOwner(t *testing.T) {
	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b", "c", "d")
	setHands(t, e,
		cards("spades_9", "hearts_4"),
		cards("spades_3", "hearts_3"),
		cards("clubs_3", "diamonds_3"),
		cards("clubs_4", "diamonds_4"),
	)

	play(t, e, "a", "spades_9")
	pass(t, e, "b")
	snap := pass(t, e, "c")
	assert.Equal(t, 3, snap.CurrentPlayerIndex)
	assert.Equal(t, 2, snap.PassCount)

	snap = pass(t, e, "d")
	assert.Equal(t, 0, snap.CurrentPlayerIndex, "turn returns to the field owner")
	assert.Zero(t, snap.FieldCount)
	assert.Empty(t, snap.FieldCards)
	assert.Zero(t, snap.PassCount)
	assert.True(t, hasEvent(snap, EventFieldFlowed))
}

func TestPassWhileLeadingRejected(t *testing.T) {
	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b")
	_, err := e.Pass("a")
	assert.ErrorIs(t, err, ErrMustLead)
	_, err = e.Pass("b")
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestEightCutContinuesTurn(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b", "c", "d")
		setHands(t, e, cards("spades_8", "spades_9"), cards("hearts_3"), cards("clubs_3"), cards("diamonds_3"))

		snap := play(t, e, "a", "spades_8")
		assert.Equal(t, 0, snap.CurrentPlayerIndex)
		assert.Zero(t, snap.FieldCount)
		assert.True(t, hasEvent(snap, EventEightCut))
	})
	t.Run("disabled", func(t *testing.T) {
		e := newTestGame(t, rulesWith(func(r *domain.RuleSettings) { r.Enable8Cut = false }), "a", "b", "c", "d")
		setHands(t, e, cards("spades_8", "spades_9"), cards("hearts_3"), cards("clubs_3"), cards("diamonds_3"))

		snap := play(t, e, "a", "spades_8")
		assert.Equal(t, 1, snap.CurrentPlayerIndex)
		assert.Equal(t, 1, snap.FieldCount)
	})
}

func TestKickbackRules(t *testing.T) {
	kickback := rulesWith(func(r *domain.RuleSettings) { r.EnableKickback = true })

	t.Run("five skips next seat", func(t *testing.T) {
		e := newTestGame(t, kickback, "a", "b", "c", "d")
		setHands(t, e, cards("spades_5", "spades_9"), cards("hearts_3"), cards("clubs_3"), cards("diamonds_3"))

		snap := play(t, e, "a", "spades_5")
		assert.Equal(t, 2, snap.CurrentPlayerIndex)
		assert.True(t, hasEvent(snap, EventFiveSkip))
	})
	t.Run("ten clears and continues", func(t *testing.T) {
		e := newTestGame(t, kickback, "a", "b", "c", "d")
		setHands(t, e, cards("spades_10", "spades_9"), cards("hearts_3"), cards("clubs_3"), cards("diamonds_3"))

		snap := play(t, e, "a", "spades_10")
		assert.Equal(t, 0, snap.CurrentPlayerIndex)
		assert.Zero(t, snap.FieldCount)
		assert.True(t, hasEvent(snap, EventTenDiscard))
	})
	t.Run("five without kickback", func(t *testing.T) {
		e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b", "c", "d")
		setHands(t, e, cards("spades_5", "spades_9"), cards("hearts_3"), cards("clubs_3"), cards("diamonds_3"))

		snap := play(t, e, "a", "spades_5")
		assert.Equal(t, 1, snap.CurrentPlayerIndex)
	})
}

func TestJBackCompoundsWithRevolution(t *testing.T) {
	jback := rulesWith(func(r *domain.RuleSettings) { r.EnableJBack = true })

	e := newTestGame(t, jback, "a", "b")
	setHands(t, e, cards("spades_J", "hearts_J", "diamonds_J", "clubs_J", "spades_3"), cards("hearts_3"))
	snap := play(t, e, "a", "spades_J", "hearts_J", "diamonds_J", "clubs_J")
	assert.False(t, snap.Revolution, "four jacks toggle twice")
	assert.True(t, hasEvent(snap, EventRevolution))
	assert.True(t, hasEvent(snap, EventJBack))

	e = newTestGame(t, jback, "a", "b")
	setHands(t, e, cards("spades_J", "spades_3"), cards("hearts_3"))
	snap = play(t, e, "a", "spades_J")
	assert.True(t, snap.Revolution)
}

func TestShibariLocksSuit(t *testing.T) {
	e := newTestGame(t, rulesWith(func(r *domain.RuleSettings) { r.EnableShibari = true }), "a", "b", "c", "d")
	setHands(t, e,
		cards("hearts_4", "clubs_K"),
		cards("hearts_6", "diamonds_K"),
		cards("spades_9", "hearts_9", "joker_1"),
		cards("clubs_Q", "clubs_A"),
	)

	snap := play(t, e, "a", "hearts_4")
	assert.False(t, snap.ShibariActive)
	assert.Equal(t, domain.SuitHearts, snap.LastSuit)

	snap = play(t, e, "b", "hearts_6")
	require.True(t, snap.ShibariActive)
	assert.True(t, hasEvent(snap, EventShibari))

	assert.ErrorIs(t, e.CanPlayCards("c", cards("spades_9")), ErrShibari)
	assert.NoError(t, e.CanPlayCards("c", cards("hearts_9")))
	assert.NoError(t, e.CanPlayCards("c", cards("joker_1")))

	snap = play(t, e, "c", "joker_1")
	assert.False(t, snap.ShibariActive, "a different suit releases the lock")
}

func TestSuitLockFollowsFieldSuit(t *testing.T) {
	e := newTestGame(t, rulesWith(func(r *domain.RuleSettings) { r.EnableSuit = true }), "a", "b")
	setHands(t, e, cards("hearts_4", "clubs_K"), cards("spades_6", "hearts_6", "joker_2"))

	play(t, e, "a", "hearts_4")
	assert.ErrorIs(t, e.CanPlayCards("b", cards("spades_6")), ErrSuitLock)
	assert.NoError(t, e.CanPlayCards("b", cards("hearts_6")))
	assert.NoError(t, e.CanPlayCards("b", cards("joker_2")))
}

func TestJokerKiller(t *testing.T) {
	hands := [][]domain.Card{cards("joker_1", "clubs_K"), cards("spades_3", "hearts_3", "clubs_9")}

	e := newTestGame(t, rulesWith(func(r *domain.RuleSettings) { r.JokerKiller = true }), "a", "b")
	setHands(t, e, hands...)
	play(t, e, "a", "joker_1")
	assert.NoError(t, e.CanPlayCards("b", cards("spades_3")))
	assert.ErrorIs(t, e.CanPlayCards("b", cards("hearts_3")), ErrTooWeak)

	e = newTestGame(t, domain.DefaultRuleSettings(), "a", "b")
	setHands(t, e, hands...)
	play(t, e, "a", "joker_1")
	assert.ErrorIs(t, e.CanPlayCards("b", cards("spades_3")), ErrTooWeak)
}

func TestSequenceFollowsTriple(t *testing.T) {
	hands := [][]domain.Card{
		cards("spades_4", "hearts_4", "diamonds_4", "clubs_K"),
		cards("spades_5", "hearts_6", "diamonds_7", "hearts_K"),
	}

	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b")
	setHands(t, e, hands...)
	play(t, e, "a", "spades_4", "hearts_4", "diamonds_4")
	snap := play(t, e, "b", "spades_5", "hearts_6", "diamonds_7")
	assert.True(t, hasEvent(snap, EventSequence))
	assert.Equal(t, 7, snap.FieldStrength)

	e = newTestGame(t, rulesWith(func(r *domain.RuleSettings) { r.EnableSequence = false }), "a", "b")
	setHands(t, e, hands...)
	play(t, e, "a", "spades_4", "hearts_4", "diamonds_4")
	assert.ErrorIs(t, e.CanPlayCards("b", cards("spades_5", "hearts_6", "diamonds_7")), ErrRankMismatch)
}

func TestPlayerWinClearsFieldAndPassesLead(t *testing.T) {
	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b", "c")
	setHands(t, e, cards("spades_9"), cards("hearts_3", "hearts_4"), cards("clubs_3", "clubs_4"))

	snap := play(t, e, "a", "spades_9")
	a, _ := snap.Player("a")
	assert.False(t, a.IsActive)
	assert.Equal(t, 1, a.Rank)
	assert.Equal(t, []string{"a"}, snap.Rankings)
	assert.Zero(t, snap.FieldCount)
	assert.Empty(t, snap.LastPlayerID)
	assert.Equal(t, 1, snap.CurrentPlayerIndex)

	_, err := e.PlayCards("a", cards("hearts_3"))
	assert.ErrorIs(t, err, ErrPlayerFinished)
}

func TestRoundEndAssignsClasses(t *testing.T) {
	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b")
	setHands(t, e, cards("spades_9"), cards("hearts_3", "hearts_4"))

	snap := play(t, e, "a", "spades_9")
	assert.Equal(t, domain.StateFinished, snap.GameState)
	assert.Equal(t, []string{"a", "b"}, snap.Rankings)
	require.Len(t, snap.RoundRankings, 2)
	assert.Equal(t, domain.ClassDaifugo, snap.RoundRankings[0].Class)
	assert.Equal(t, domain.ClassDaihinmin, snap.RoundRankings[1].Class)
	assert.True(t, hasEvent(snap, EventGameEnded))

	results := e.Results()
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Standings[1].CardsLeft)
}

func TestCardExchange(t *testing.T) {
	e := newTestGame(t, rulesWith(func(r *domain.RuleSettings) { r.Rounds = 2 }), "a", "b", "c", "d")
	classes := []domain.Class{domain.ClassDaifugo, domain.ClassFugo, domain.ClassHeimin, domain.ClassDaihinmin}
	for i, p := range e.players {
		p.CurrentRank = classes[i]
	}
	e.startNextRound()
	require.Equal(t, domain.StateCardExchange, e.State())
	require.Equal(t, 2, e.currentRound)
	require.Equal(t, 3, e.currentPlayerIndex, "daihinmin leads the next round")

	setHands(t, e,
		cards("clubs_3", "spades_4", "spades_9", "spades_A"),
		cards("spades_5", "spades_6", "spades_Q"),
		cards("hearts_7", "hearts_8", "hearts_J"),
		cards("spades_3", "hearts_3", "diamonds_3", "spades_K", "spades_2"),
	)

	_, err := e.Pass("d")
	assert.ErrorIs(t, err, ErrNotPlaying)
	current, _ := e.CurrentPlayer()
	assert.Empty(t, current)
	assert.Equal(t, "d", e.NextActor(), "the daihinmin gives first")

	want, err := e.StrongestCards("d", 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, cards("spades_2", "spades_K"), want)

	assert.ErrorIs(t, e.ExchangeCards("d", cards("spades_3", "hearts_3")), ErrExchangeNotStrongest)
	assert.ErrorIs(t, e.ExchangeCards("d", cards("spades_2")), ErrExchangeCount)
	assert.ErrorIs(t, e.ExchangeCards("a", cards("spades_A")), ErrNoExchangeDue)

	require.NoError(t, e.ExchangeCards("d", cards("spades_2", "spades_K")))
	assert.Equal(t, domain.StateCardExchange, e.State())
	assert.Equal(t, "c", e.NextActor())
	assert.ErrorIs(t, e.ExchangeCards("d", cards("spades_2", "spades_K")), ErrNoExchangeDue)

	require.NoError(t, e.ExchangeCards("c", cards("hearts_J")))
	assert.Equal(t, domain.StatePlaying, e.State())

	hand := func(id string) []domain.Card {
		h, err := e.GetPlayerCards(id)
		require.NoError(t, err)
		return h
	}
	assert.ElementsMatch(t, cards("spades_9", "spades_A", "spades_K", "spades_2"), hand("a"))
	assert.ElementsMatch(t, cards("spades_3", "hearts_3", "diamonds_3", "clubs_3", "spades_4"), hand("d"))
	assert.ElementsMatch(t, cards("spades_6", "spades_Q", "hearts_J"), hand("b"))
	assert.ElementsMatch(t, cards("hearts_7", "hearts_8", "spades_5"), hand("c"))

	snap := e.GetGameState()
	assert.Equal(t, "d", snap.CurrentPlayerID)
	assert.Equal(t, "d", e.NextActor())
	assert.True(t, hasEvent(snap, EventExchangeCompleted))
}

func TestExecuteCPUTurnRequiresBot(t *testing.T) {
	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b")
	_, err := e.ExecuteCPUTurn()
	assert.ErrorIs(t, err, ErrNotCPU)

	require.NoError(t, e.SetPlayerKind("a", domain.KindBot))
	action, err := e.ExecuteCPUTurn()
	require.NoError(t, err)
	assert.Equal(t, CPUPlay, action.Action)
	assert.Equal(t, "a", action.PlayerID)
	assert.Len(t, action.Cards, 1)
}

func TestCPUPassesWithoutOptions(t *testing.T) {
	e := NewEngine(WithRand(rand.New(rand.NewSource(3))))
	require.NoError(t, e.InitializeGame(seeds(domain.KindBot, "a", "b"), nil))
	setHands(t, e, cards("spades_2", "spades_3"), cards("hearts_3", "hearts_4"))

	play(t, e, "a", "spades_2")
	action, err := e.ExecuteCPUTurn()
	require.NoError(t, err)
	assert.Equal(t, CPUPass, action.Action)
	assert.Equal(t, 0, e.currentPlayerIndex)
}

type lowestPolicy struct{}

func (lowestPolicy) Choose(_ CPUView, options [][]domain.Card) int { return 0 }

func TestExecuteCPUTurnWithPolicy(t *testing.T) {
	e := NewEngine(WithRand(rand.New(rand.NewSource(3))))
	require.NoError(t, e.InitializeGame(seeds(domain.KindBot, "a", "b"), nil))
	setHands(t, e, cards("spades_4", "spades_9", "hearts_K"), cards("hearts_3", "hearts_5"))

	action, err := e.ExecuteCPUTurnWith(lowestPolicy{})
	require.NoError(t, err)
	assert.Equal(t, cards("spades_4"), action.Cards)
}

func TestCPUGameRunsToCompletion(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		e := NewEngine(WithRand(rand.New(rand.NewSource(seed))), WithHistorySize(64))
		require.NoError(t, e.InitializeGame(seeds(domain.KindBot, "a", "b", "c", "d"), nil))

		for i := 0; i < 5000 && e.State() != domain.StateFinished; i++ {
			_, err := e.ExecuteCPUTurn()
			require.NoError(t, err, "seed %d step %d", seed, i)
			require.NoError(t, e.checkInvariants())
			if e.State() == domain.StatePlaying {
				require.True(t, e.players[e.currentPlayerIndex].IsActive)
			}
		}

		snap := e.GetGameState()
		require.Equal(t, domain.StateFinished, snap.GameState, "seed %d", seed)
		require.Len(t, snap.Rankings, 4)
		seen := make(map[int]bool)
		for _, p := range snap.Players {
			assert.False(t, seen[p.Rank], "duplicate rank %d", p.Rank)
			seen[p.Rank] = true
			assert.GreaterOrEqual(t, p.Rank, 1)
			assert.LessOrEqual(t, p.Rank, 4)
		}
	}
}

func TestMultiRoundCPUGame(t *testing.T) {
	rules := rulesWith(func(r *domain.RuleSettings) {
		r.Rounds = 3
		r.EnableKickback = true
		r.EnableShibari = true
		r.EnableJBack = true
		r.JokerKiller = true
	})
	e := NewEngine(WithRand(rand.New(rand.NewSource(11))))
	require.NoError(t, e.InitializeGame(seeds(domain.KindBot, "a", "b", "c", "d"), &rules))

	sawExchange := false
	for i := 0; i < 20000 && e.State() != domain.StateFinished; i++ {
		if e.State() == domain.StateCardExchange {
			sawExchange = true
		}
		_, err := e.ExecuteCPUTurn()
		require.NoError(t, err)
		require.NoError(t, e.checkInvariants())
	}

	require.Equal(t, domain.StateFinished, e.State())
	assert.True(t, sawExchange)
	results := e.Results()
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Len(t, r.Standings, 4)
	}
}

func TestSnapshotHidesHands(t *testing.T) {
	e := newTestGame(t, domain.DefaultRuleSettings(), "a", "b", "c")
	raw, err := json.Marshal(e.GetGameState())
	require.NoError(t, err)

	hand, err := e.GetPlayerCards("b")
	require.NoError(t, err)
	for _, c := range hand {
		assert.False(t, strings.Contains(string(raw), `"`+c.ID+`"`), "snapshot leaked %s", c.ID)
	}

	hand[0] = domain.Card{ID: "forged"}
	again, _ := e.GetPlayerCards("b")
	assert.NotEqual(t, "forged", again[0].ID)
}

func TestDescribe(t *testing.T) {
	assert.Empty(t, describe(nil))
	assert.Equal(t, "JOKER", describe(cards("joker_1")))
	played := cards("spades_5", "hearts_5", "joker_2")
	assert.Equal(t, played[0].String()+" "+played[1].String()+" JOKER", describe(played))
}
