package domain

import "errors"

// ErrInvalidRounds is returned when a rule set asks for fewer than one round.
var ErrInvalidRounds = errors.New("rounds must be at least 1")

// RuleSettings toggles the optional rules of a game.
type RuleSettings struct {
	Enable8Cut       bool `json:"enable8Cut"`
	EnableRevolution bool `json:"enableRevolution"`
	EnableSequence   bool `json:"enableSequence"`
	EnableSuit       bool `json:"enableSuit"`
	EnableJBack      bool `json:"enableJBack"`
	EnableKickback   bool `json:"enableKickback"` // 10-discard and 5-skip
	JokerKiller      bool `json:"jokerKiller"`
	EnableShibari    bool `json:"enableShibari"`
	Rounds           int  `json:"rounds"`
}

// DefaultRuleSettings enables 8-cut, revolution and sequences for a single round.
func DefaultRuleSettings() RuleSettings {
	return RuleSettings{
		Enable8Cut:       true,
		EnableRevolution: true,
		EnableSequence:   true,
		Rounds:           1,
	}
}

// Validate checks the numeric settings.
func (r RuleSettings) Validate() error {
	if r.Rounds < 1 {
		return ErrInvalidRounds
	}
	return nil
}

// RuleOverrides is a partial rule set. Nil fields keep the base value.
type RuleOverrides struct {
	Enable8Cut       *bool `json:"enable8Cut,omitempty"`
	EnableRevolution *bool `json:"enableRevolution,omitempty"`
	EnableSequence   *bool `json:"enableSequence,omitempty"`
	EnableSuit       *bool `json:"enableSuit,omitempty"`
	EnableJBack      *bool `json:"enableJBack,omitempty"`
	EnableKickback   *bool `json:"enableKickback,omitempty"`
	JokerKiller      *bool `json:"jokerKiller,omitempty"`
	EnableShibari    *bool `json:"enableShibari,omitempty"`
	Rounds           *int  `json:"rounds,omitempty"`
}

// Apply merges the overrides over base.
func (o RuleOverrides) Apply(base RuleSettings) RuleSettings {
	setBool(&base.Enable8Cut, o.Enable8Cut)
	setBool(&base.EnableRevolution, o.EnableRevolution)
	setBool(&base.EnableSequence, o.EnableSequence)
	setBool(&base.EnableSuit, o.EnableSuit)
	setBool(&base.EnableJBack, o.EnableJBack)
	setBool(&base.EnableKickback, o.EnableKickback)
	setBool(&base.JokerKiller, o.JokerKiller)
	setBool(&base.EnableShibari, o.EnableShibari)
	if o.Rounds != nil {
		base.Rounds = *o.Rounds
	}
	return base
}

// Merge layers other over o; fields set in other win.
func (o RuleOverrides) Merge(other RuleOverrides) RuleOverrides {
	pick := func(a, b *bool) *bool {
		if b != nil {
			return b
		}
		return a
	}
	out := RuleOverrides{
		Enable8Cut:       pick(o.Enable8Cut, other.Enable8Cut),
		EnableRevolution: pick(o.EnableRevolution, other.EnableRevolution),
		EnableSequence:   pick(o.EnableSequence, other.EnableSequence),
		EnableSuit:       pick(o.EnableSuit, other.EnableSuit),
		EnableJBack:      pick(o.EnableJBack, other.EnableJBack),
		EnableKickback:   pick(o.EnableKickback, other.EnableKickback),
		JokerKiller:      pick(o.JokerKiller, other.JokerKiller),
		EnableShibari:    pick(o.EnableShibari, other.EnableShibari),
		Rounds:           o.Rounds,
	}
	if other.Rounds != nil {
		out.Rounds = other.Rounds
	}
	return out
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
