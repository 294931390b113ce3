package domain

// RemoveCards returns hand without the cards whose IDs appear in played.
func RemoveCards(hand []Card, played []Card) []Card {
	drop := make(map[string]struct{}, len(played))
	for _, c := range played {
		drop[c.ID] = struct{}{}
	}
	out := make([]Card, 0, len(hand))
	for _, c := range hand {
		if _, ok := drop[c.ID]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ResolveCards looks up the submitted cards in hand by ID. It returns the
// hand's copies, or the first offending ID and whether it was a repeat.
func ResolveCards(hand []Card, submitted []Card) (resolved []Card, badID string, repeated bool) {
	byID := make(map[string]Card, len(hand))
	for _, c := range hand {
		byID[c.ID] = c
	}
	seen := make(map[string]struct{}, len(submitted))
	resolved = make([]Card, 0, len(submitted))
	for _, s := range submitted {
		if _, dup := seen[s.ID]; dup {
			return nil, s.ID, true
		}
		seen[s.ID] = struct{}{}
		c, ok := byID[s.ID]
		if !ok {
			return nil, s.ID, false
		}
		resolved = append(resolved, c)
	}
	return resolved, "", false
}

// CardIDs returns the IDs of cards in order.
func CardIDs(cards []Card) []string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}

// CardsFromIDs builds ID-only cards, the form clients submit.
func CardsFromIDs(ids []string) []Card {
	out := make([]Card, len(ids))
	for i, id := range ids {
		out[i] = Card{ID: id}
	}
	return out
}

// CountActivePlayers returns how many players are still in the round.
func CountActivePlayers(players []*Player) int {
	n := 0
	for _, p := range players {
		if p.IsActive {
			n++
		}
	}
	return n
}

// GroupByRank buckets a hand by rank, preserving first-seen rank order.
func GroupByRank(hand []Card) [][]Card {
	index := make(map[string]int)
	var groups [][]Card
	for _, c := range hand {
		i, ok := index[c.Rank]
		if !ok {
			i = len(groups)
			index[c.Rank] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], c)
	}
	return groups
}
