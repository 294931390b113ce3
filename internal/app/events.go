package app

import (
	"time"

	"daifugo/internal/domain"
)

// EventKind identifies a history entry.
type EventKind string

const (
	EventGameStarted       EventKind = "game_started"
	EventRoundStarted      EventKind = "round_started"
	EventCardPlayed        EventKind = "card_played"
	EventTurnPassed        EventKind = "turn_passed"
	EventFieldFlowed       EventKind = "field_flowed"
	EventEightCut          EventKind = "eight_cut"
	EventTenDiscard        EventKind = "ten_discard"
	EventRevolution        EventKind = "revolution"
	EventJBack             EventKind = "j_back"
	EventFiveSkip          EventKind = "five_skip"
	EventSequence          EventKind = "sequence"
	EventShibari           EventKind = "shibari"
	EventPlayerFinished    EventKind = "player_finished"
	EventRoundEnded        EventKind = "round_ended"
	EventExchangeRequested EventKind = "exchange_requested"
	EventExchangeSubmitted EventKind = "exchange_submitted"
	EventExchangeCompleted EventKind = "exchange_completed"
	EventGameEnded         EventKind = "game_ended"
)

// HistoryEntry is one narrated event. Seq increases by one per entry for
// the lifetime of a game.
type HistoryEntry struct {
	Seq      int           `json:"seq"`
	Round    int           `json:"round"`
	Kind     EventKind     `json:"kind"`
	PlayerID string        `json:"playerId,omitempty"`
	Cards    []domain.Card `json:"cards,omitempty"`
	Message  string        `json:"message"`
	At       time.Time     `json:"at"`
}

// History keeps the most recent entries in a fixed-capacity ring.
type History struct {
	buf  []HistoryEntry
	next int
	size int
	seq  int
}

// NewHistory returns a ring holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]HistoryEntry, capacity)}
}

// Add stores entry, evicting the oldest once full, and returns it with its Seq set.
func (h *History) Add(entry HistoryEntry) HistoryEntry {
	h.seq++
	entry.Seq = h.seq
	h.buf[h.next] = entry
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
	return entry
}

// Entries returns the retained entries oldest first.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, 0, h.size)
	start := (h.next - h.size + len(h.buf)) % len(h.buf)
	for i := 0; i < h.size; i++ {
		e := h.buf[(start+i)%len(h.buf)]
		e.Cards = append([]domain.Card(nil), e.Cards...)
		out = append(out, e)
	}
	return out
}

// Since returns retained entries with Seq greater than seq.
func (h *History) Since(seq int) []HistoryEntry {
	var out []HistoryEntry
	for _, e := range h.Entries() {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// LastSeq is the Seq of the newest entry, 0 when empty.
func (h *History) LastSeq() int {
	return h.seq
}
