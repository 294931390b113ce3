package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"daifugo/internal/domain"
)

// GameConfig holds the tunables of hosted matches.
type GameConfig struct {
	// DefaultRules are layered over domain.DefaultRuleSettings before the
	// owner's own overrides.
	DefaultRules        domain.RuleOverrides `json:"default_rules"`
	Seats               int                  `json:"seats"`
	HistorySize         int                  `json:"history_size"`
	TurnDurationSeconds int                  `json:"turn_duration_seconds"`
	// BotAutoFillDelaySeconds configures how many seconds to wait before adding bots to a solo human lobby.
	BotAutoFillDelaySeconds int   `json:"bot_auto_fill_delay_seconds"`
	BotMinDelaySeconds      int   `json:"bot_min_delay_seconds"`
	BotMaxDelaySeconds      int   `json:"bot_max_delay_seconds"`
	RatingStep              int64 `json:"rating_step"`
	InitialRating           int64 `json:"initial_rating"`
	SnapshotTTLSeconds      int   `json:"snapshot_ttl_seconds"`
}

// Defaults returns the configuration used when no file is loaded.
func Defaults() GameConfig {
	return GameConfig{
		Seats:                   4,
		HistorySize:             10,
		TurnDurationSeconds:     30,
		BotAutoFillDelaySeconds: 5,
		BotMinDelaySeconds:      1,
		BotMaxDelaySeconds:      3,
		RatingStep:              10,
		InitialRating:           1000,
		SnapshotTTLSeconds:      3600,
	}
}

var (
	cfg      *GameConfig
	loadOnce sync.Once
	loadErr  error
)

// LoadGameConfig loads the game configuration from the given path.
func LoadGameConfig(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read game config: %w", err)
			return
		}
		c, err := ParseGameConfig(data)
		if err != nil {
			loadErr = err
			return
		}
		cfg = &c
	})
	return loadErr
}

// ParseGameConfig decodes a JSON config. Missing or non-positive numbers
// take their defaults, except a turn duration of 0 which disables the timer.
func ParseGameConfig(data []byte) (GameConfig, error) {
	c := Defaults()
	if err := json.Unmarshal(data, &c); err != nil {
		return GameConfig{}, fmt.Errorf("failed to unmarshal game config: %w", err)
	}
	c.fillDefaults()
	if c.Seats < domain.MinPlayers || c.Seats > domain.MaxPlayers {
		return GameConfig{}, fmt.Errorf("seats must be between %d and %d, got %d", domain.MinPlayers, domain.MaxPlayers, c.Seats)
	}
	if c.BotMaxDelaySeconds < c.BotMinDelaySeconds {
		return GameConfig{}, fmt.Errorf("bot_max_delay_seconds (%d) is below bot_min_delay_seconds (%d)", c.BotMaxDelaySeconds, c.BotMinDelaySeconds)
	}
	if _, err := c.Rules(nil); err != nil {
		return GameConfig{}, err
	}
	return c, nil
}

func (c *GameConfig) fillDefaults() {
	d := Defaults()
	positive := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	positive(&c.Seats, d.Seats)
	positive(&c.HistorySize, d.HistorySize)
	// 0 turns the turn timer off.
	if c.TurnDurationSeconds < 0 {
		c.TurnDurationSeconds = d.TurnDurationSeconds
	}
	positive(&c.BotAutoFillDelaySeconds, d.BotAutoFillDelaySeconds)
	positive(&c.BotMinDelaySeconds, d.BotMinDelaySeconds)
	positive(&c.BotMaxDelaySeconds, d.BotMaxDelaySeconds)
	positive(&c.SnapshotTTLSeconds, d.SnapshotTTLSeconds)
	if c.RatingStep <= 0 {
		c.RatingStep = d.RatingStep
	}
	if c.InitialRating <= 0 {
		c.InitialRating = d.InitialRating
	}
}

// GetGameConfig returns the loaded configuration, or the defaults.
func GetGameConfig() GameConfig {
	if cfg == nil {
		return Defaults()
	}
	return *cfg
}

// Rules resolves the effective rule set: engine defaults, then the configured
// defaults, then the caller's overrides.
func (c GameConfig) Rules(overrides *domain.RuleOverrides) (domain.RuleSettings, error) {
	layered := c.DefaultRules
	if overrides != nil {
		layered = layered.Merge(*overrides)
	}
	rules := layered.Apply(domain.DefaultRuleSettings())
	if err := rules.Validate(); err != nil {
		return domain.RuleSettings{}, err
	}
	return rules, nil
}

// SnapshotTTL is SnapshotTTLSeconds as a duration.
func (c GameConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}
