package domain

import "sort"

// AllSameRank reports whether every card shares one rank.
func AllSameRank(cards []Card) bool {
	if len(cards) == 0 {
		return false
	}
	for _, c := range cards[1:] {
		if c.Rank != cards[0].Rank {
			return false
		}
	}
	return true
}

// IsSequence reports whether cards form a run of three or more consecutive
// strengths. Suits may differ. A joker sits at its own strength above 2, so
// A-2-JOKER is a run, but it never fills a gap.
func IsSequence(cards []Card) bool {
	if len(cards) < 3 {
		return false
	}
	strengths := make([]int, len(cards))
	for i, c := range cards {
		strengths[i] = c.Strength
	}
	sort.Ints(strengths)
	for i := 1; i < len(strengths); i++ {
		if strengths[i] != strengths[i-1]+1 {
			return false
		}
	}
	return true
}

// PlayStrength is the strength a play is compared by: the shared strength
// of a same-rank group, or the top of a run.
func PlayStrength(cards []Card) int {
	top := 0
	for _, c := range cards {
		if c.Strength > top {
			top = c.Strength
		}
	}
	return top
}

// Beats compares two strengths under the given polarity.
func Beats(play, field int, revolution bool) bool {
	if revolution {
		return play < field
	}
	return play > field
}

// CommonSuit returns the suit every card shares, or "" when suits are mixed.
func CommonSuit(cards []Card) Suit {
	if len(cards) == 0 {
		return ""
	}
	s := cards[0].Suit
	for _, c := range cards[1:] {
		if c.Suit != s {
			return ""
		}
	}
	return s
}

// FieldSuit returns the suit shared by the non-joker cards of a play, or "".
func FieldSuit(cards []Card) Suit {
	var s Suit
	for _, c := range cards {
		if c.IsJoker() {
			continue
		}
		if s == "" {
			s = c.Suit
			continue
		}
		if c.Suit != s {
			return ""
		}
	}
	return s
}

// ContainsJoker reports whether any card is a joker.
func ContainsJoker(cards []Card) bool {
	for _, c := range cards {
		if c.IsJoker() {
			return true
		}
	}
	return false
}

// ContainsRank reports whether any card has the given rank.
func ContainsRank(cards []Card, rank string) bool {
	for _, c := range cards {
		if c.Rank == rank {
			return true
		}
	}
	return false
}

// IsJokerKill reports whether play is a lone 3 of spades answering a lone joker.
func IsJokerKill(field, play []Card) bool {
	if len(field) != 1 || len(play) != 1 {
		return false
	}
	return field[0].IsJoker() && play[0].Suit == SuitSpades && play[0].Rank == RankThree
}

// StrongestFirst returns a copy of cards ordered strongest first under the polarity.
func StrongestFirst(cards []Card, revolution bool) []Card {
	out := append([]Card(nil), cards...)
	SortHand(out)
	if !revolution {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// ClassesFor maps finishing positions to classes for a table of n players.
// Index 0 is the first finisher.
func ClassesFor(n int) []Class {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []Class{ClassDaifugo}
	case n == 3:
		return []Class{ClassDaifugo, ClassHeimin, ClassDaihinmin}
	case n == 4:
		return []Class{ClassDaifugo, ClassFugo, ClassHeimin, ClassDaihinmin}
	}
	out := make([]Class, n)
	for i := range out {
		out[i] = ClassHeimin
	}
	out[0] = ClassDaifugo
	out[n-1] = ClassDaihinmin
	return out
}
