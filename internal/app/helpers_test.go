package app

import (
	"math/rand"
	"testing"

	"daifugo/internal/domain"

	"github.com/stretchr/testify/require"
)

var deckByID = func() map[string]domain.Card {
	m := make(map[string]domain.Card)
	for _, c := range domain.NewDeck() {
		m[c.ID] = c
	}
	return m
}()

// cards looks up deck cards by id, e.g. cards("spades_5", "joker_1").
func cards(ids ...string) []domain.Card {
	out := make([]domain.Card, len(ids))
	for i, id := range ids {
		c, ok := deckByID[id]
		if !ok {
			panic("unknown card id " + id)
		}
		out[i] = c
	}
	return out
}

func seeds(kind domain.PlayerKind, ids ...string) []domain.PlayerSeed {
	out := make([]domain.PlayerSeed, len(ids))
	for i, id := range ids {
		out[i] = domain.PlayerSeed{ID: id, Username: id, Kind: kind}
	}
	return out
}

// newTestGame starts a game for the given players with rules applied over defaults.
func newTestGame(t *testing.T, rules domain.RuleSettings, ids ...string) *GameEngine {
	t.Helper()
	e := NewEngine(WithRand(rand.New(rand.NewSource(1))), WithGameID("test-game"))
	require.NoError(t, e.InitializeGame(seeds(domain.KindHuman, ids...), &rules))
	return e
}

// setHands replaces every seat's hand in seat order and books the rest of
// the deck as discarded so card conservation still holds.
func setHands(t *testing.T, e *GameEngine, hands ...[]domain.Card) {
	t.Helper()
	require.Len(t, hands, len(e.players))
	total := len(e.fieldCards)
	for i, h := range hands {
		e.players[i].Cards = append([]domain.Card(nil), h...)
		domain.SortHand(e.players[i].Cards)
		total += len(h)
	}
	require.LessOrEqual(t, total, domain.DeckSize)
	e.discarded = domain.DeckSize - total
}

func play(t *testing.T, e *GameEngine, playerID string, ids ...string) Snapshot {
	t.Helper()
	snap, err := e.PlayCards(playerID, cards(ids...))
	require.NoError(t, err)
	return snap
}

func pass(t *testing.T, e *GameEngine, playerID string) Snapshot {
	t.Helper()
	snap, err := e.Pass(playerID)
	require.NoError(t, err)
	return snap
}

func hasEvent(s Snapshot, kind EventKind) bool {
	for _, h := range s.History {
		if h.Kind == kind {
			return true
		}
	}
	return false
}

func rulesWith(mut func(*domain.RuleSettings)) domain.RuleSettings {
	r := domain.DefaultRuleSettings()
	if mut != nil {
		mut(&r)
	}
	return r
}
