package app

// RatingDeltas converts round standings into rating changes. Each round is
// zero-sum: with n players, place k earns (n+1-2k) * step.
func RatingDeltas(results []RoundResult, step int64) map[string]int64 {
	deltas := make(map[string]int64)
	for _, r := range results {
		n := int64(len(r.Standings))
		for _, s := range r.Standings {
			deltas[s.PlayerID] += (n + 1 - 2*int64(s.Rank)) * step
		}
	}
	return deltas
}

// ClassTally counts how often each player ended a round in each class.
func ClassTally(results []RoundResult) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for _, r := range results {
		for _, s := range r.Standings {
			if out[s.PlayerID] == nil {
				out[s.PlayerID] = make(map[string]int)
			}
			out[s.PlayerID][string(s.Class)]++
		}
	}
	return out
}
