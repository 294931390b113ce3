package domain

import (
	"testing"
)

func card(suit Suit, rank string) Card {
	return Card{Suit: suit, Rank: rank, Strength: RankStrength(rank), ID: string(suit) + "_" + rank}
}

func TestIsSequence(t *testing.T) {
	tests := []struct {
		name     string
		cards    []Card
		expected bool
	}{
		{
			name:     "Run of three",
			cards:    []Card{card(SuitHearts, "5"), card(SuitSpades, "6"), card(SuitClubs, "7")},
			expected: true,
		},
		{
			name:     "Unordered run",
			cards:    []Card{card(SuitHearts, "Q"), card(SuitSpades, "J"), card(SuitClubs, "K"), card(SuitClubs, "10")},
			expected: true,
		},
		{
			name:     "Too short",
			cards:    []Card{card(SuitHearts, "5"), card(SuitSpades, "6")},
			expected: false,
		},
		{
			name:     "Gap",
			cards:    []Card{card(SuitHearts, "5"), card(SuitSpades, "6"), card(SuitClubs, "8")},
			expected: false,
		},
		{
			name:     "Duplicate rank",
			cards:    []Card{card(SuitHearts, "5"), card(SuitSpades, "5"), card(SuitClubs, "6")},
			expected: false,
		},
		{
			name:     "Ace two joker",
			cards:    []Card{card(SuitHearts, "A"), card(SuitSpades, "2"), {Suit: SuitJoker, Rank: RankJoker, Strength: JokerStrength, ID: "joker_1"}},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSequence(tt.cards); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestBeats(t *testing.T) {
	tests := []struct {
		name       string
		play       int
		field      int
		revolution bool
		expected   bool
	}{
		{name: "4 beats 3", play: 4, field: 3, expected: true},
		{name: "3 loses to 4", play: 3, field: 4, expected: false},
		{name: "equal never beats", play: 7, field: 7, expected: false},
		{name: "revolution: 3 beats 4", play: 3, field: 4, revolution: true, expected: true},
		{name: "revolution: 4 beats 6", play: 4, field: 6, revolution: true, expected: true},
		{name: "revolution: 2 loses to K", play: 15, field: 13, revolution: true, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Beats(tt.play, tt.field, tt.revolution); got != tt.expected {
				t.Errorf("Beats(%d, %d, %v) = %v, want %v", tt.play, tt.field, tt.revolution, got, tt.expected)
			}
		})
	}
}

func TestPlayStrength(t *testing.T) {
	run := []Card{card(SuitHearts, "9"), card(SuitHearts, "10"), card(SuitHearts, "J")}
	if got := PlayStrength(run); got != 11 {
		t.Fatalf("run strength = %d, want 11", got)
	}
	pair := []Card{card(SuitHearts, "K"), card(SuitClubs, "K")}
	if got := PlayStrength(pair); got != 13 {
		t.Fatalf("pair strength = %d, want 13", got)
	}
}

func TestSuitHelpers(t *testing.T) {
	joker := Card{Suit: SuitJoker, Rank: RankJoker, Strength: JokerStrength, ID: "joker_1"}

	if got := CommonSuit([]Card{card(SuitHearts, "3"), card(SuitHearts, "9")}); got != SuitHearts {
		t.Fatalf("CommonSuit = %q, want hearts", got)
	}
	if got := CommonSuit([]Card{card(SuitHearts, "3"), card(SuitClubs, "3")}); got != "" {
		t.Fatalf("CommonSuit of mixed suits = %q, want empty", got)
	}
	if got := FieldSuit([]Card{card(SuitDiamonds, "3"), joker}); got != SuitDiamonds {
		t.Fatalf("FieldSuit ignoring joker = %q, want diamonds", got)
	}
	if !ContainsJoker([]Card{card(SuitDiamonds, "3"), joker}) {
		t.Fatal("expected joker to be detected")
	}
}

func TestIsJokerKill(t *testing.T) {
	joker := Card{Suit: SuitJoker, Rank: RankJoker, Strength: JokerStrength, ID: "joker_2"}
	if !IsJokerKill([]Card{joker}, []Card{card(SuitSpades, "3")}) {
		t.Fatal("3 of spades should kill a lone joker")
	}
	if IsJokerKill([]Card{joker}, []Card{card(SuitHearts, "3")}) {
		t.Fatal("only the 3 of spades kills a joker")
	}
	if IsJokerKill([]Card{card(SuitHearts, "2")}, []Card{card(SuitSpades, "3")}) {
		t.Fatal("joker kill requires a joker on the field")
	}
}

func TestStrongestFirst(t *testing.T) {
	hand := []Card{card(SuitHearts, "3"), card(SuitClubs, "2"), card(SuitSpades, "K"), card(SuitClubs, "3")}

	got := StrongestFirst(hand, false)
	if got[0].Rank != "2" || got[1].Rank != "K" {
		t.Fatalf("unexpected order %v", got)
	}
	got = StrongestFirst(hand, true)
	if got[0].Rank != "3" || got[len(got)-1].Rank != "2" {
		t.Fatalf("unexpected revolution order %v", got)
	}
	if hand[0].Rank != "3" || hand[1].Rank != "2" {
		t.Fatal("StrongestFirst must not reorder its input")
	}
}

func TestClassesFor(t *testing.T) {
	tests := []struct {
		n    int
		want []Class
	}{
		{n: 2, want: []Class{ClassDaifugo, ClassDaihinmin}},
		{n: 3, want: []Class{ClassDaifugo, ClassHeimin, ClassDaihinmin}},
		{n: 4, want: []Class{ClassDaifugo, ClassFugo, ClassHeimin, ClassDaihinmin}},
		{n: 5, want: []Class{ClassDaifugo, ClassHeimin, ClassHeimin, ClassHeimin, ClassDaihinmin}},
	}
	for _, tt := range tests {
		got := ClassesFor(tt.n)
		if len(got) != len(tt.want) {
			t.Fatalf("ClassesFor(%d) len = %d, want %d", tt.n, len(got), len(tt.want))
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("ClassesFor(%d)[%d] = %q, want %q", tt.n, i, got[i], tt.want[i])
			}
		}
	}
}

func TestRuleOverridesApply(t *testing.T) {
	on, off, rounds := true, false, 3
	got := RuleOverrides{EnableShibari: &on, Enable8Cut: &off, Rounds: &rounds}.Apply(DefaultRuleSettings())

	if !got.EnableShibari || got.Enable8Cut || got.Rounds != 3 {
		t.Fatalf("unexpected settings %+v", got)
	}
	if !got.EnableRevolution || !got.EnableSequence {
		t.Fatalf("untouched defaults were lost: %+v", got)
	}
	if err := (RuleSettings{}).Validate(); err != ErrInvalidRounds {
		t.Fatalf("Validate() = %v, want ErrInvalidRounds", err)
	}
}
