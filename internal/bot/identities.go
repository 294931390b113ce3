package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"daifugo/internal/domain"

	"github.com/heroiclabs/nakama-common/runtime"
)

// BotIdentity is one CPU opponent profile.
type BotIdentity struct {
	DeviceID    string `json:"device_id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Level       Level  `json:"level"`
	AvatarIndex int    `json:"avatar_index"`
}

// Pool holds the known bot identities and answers whether a user id is a bot.
type Pool struct {
	mu         sync.RWMutex
	identities []BotIdentity
	byID       map[string]BotIdentity
}

// NewPool builds a pool from identities. Entries without a user id are kept
// for provisioning but are not recognized as bots until provisioned.
func NewPool(identities []BotIdentity) *Pool {
	p := &Pool{
		identities: append([]BotIdentity(nil), identities...),
		byID:       make(map[string]BotIdentity),
	}
	for _, identity := range p.identities {
		if identity.UserID != "" {
			p.byID[identity.UserID] = identity
		}
	}
	return p
}

// ParsePool decodes a JSON array of identities.
func ParsePool(data []byte) (*Pool, error) {
	var identities []BotIdentity
	if err := json.Unmarshal(data, &identities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bot identities: %w", err)
	}
	return NewPool(identities), nil
}

var (
	defaultPool   = NewPool(nil)
	loadOnce      sync.Once
	provisionOnce sync.Once
	loadErr       error
)

// LoadIdentities loads the process-wide pool from path once.
func LoadIdentities(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read bot identities: %w", err)
			return
		}
		pool, err := ParsePool(data)
		if err != nil {
			loadErr = err
			return
		}
		defaultPool = pool
	})
	return loadErr
}

// Default returns the process-wide pool.
func Default() *Pool {
	return defaultPool
}

// ProvisionBots provisions the process-wide pool once.
func ProvisionBots(ctx context.Context, nk runtime.NakamaModule, logger runtime.Logger) {
	provisionOnce.Do(func() {
		defaultPool.Provision(ctx, nk, logger)
	})
}

// Provision makes sure every identity with a device id has a Nakama account
// tagged as a bot, and records the resulting user ids.
func (p *Pool) Provision(ctx context.Context, nk runtime.NakamaModule, logger runtime.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.identities {
		identity := &p.identities[i]
		if identity.DeviceID == "" {
			continue
		}

		userID, username, _, err := nk.AuthenticateDevice(ctx, identity.DeviceID, identity.Username, true)
		if err != nil {
			logger.Error("ProvisionBots: Failed to authenticate bot %s: %v", identity.Username, err)
			continue
		}
		identity.UserID = userID
		identity.Username = username

		metadata := map[string]interface{}{
			"is_bot":       true,
			"level":        string(identity.Level),
			"avatar_index": identity.AvatarIndex,
		}
		if err := nk.AccountUpdateId(ctx, userID, identity.Username, metadata, identity.DisplayName, "", "", "", ""); err != nil {
			logger.Warn("ProvisionBots: Failed to update bot account %s: %v", userID, err)
		}

		p.byID[userID] = *identity
		logger.Info("ProvisionBots: Bot %s (%s) is ready. Level: %s", identity.DisplayName, userID, identity.Level)
	}
}

// Lookup returns the identity registered for userID.
func (p *Pool) Lookup(userID string) (BotIdentity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	identity, ok := p.byID[userID]
	return identity, ok
}

// IsBot reports whether userID belongs to the pool.
func (p *Pool) IsBot(userID string) bool {
	_, ok := p.Lookup(userID)
	return ok
}

// Kind maps a user id to the seat kind the engine expects.
func (p *Pool) Kind(userID string) domain.PlayerKind {
	if p.IsBot(userID) {
		return domain.KindBot
	}
	return domain.KindHuman
}

// DisplayName returns the bot's display name, falling back to its username.
func (p *Pool) DisplayName(userID string) string {
	identity, ok := p.Lookup(userID)
	if !ok {
		return ""
	}
	if identity.DisplayName != "" {
		return identity.DisplayName
	}
	return identity.Username
}

// Identity returns the identity for a seat index (mod pool size). An empty
// pool synthesizes "cpu-<n>" identities and remembers them as bots.
func (p *Pool) Identity(index int) BotIdentity {
	p.mu.Lock()
	defer p.mu.Unlock()

	var known []BotIdentity
	for _, identity := range p.identities {
		if identity.UserID != "" {
			known = append(known, identity)
		}
	}
	if len(known) > 0 {
		return known[index%len(known)]
	}

	identity := BotIdentity{
		UserID:      fmt.Sprintf("cpu-%d", index),
		Username:    fmt.Sprintf("cpu-%d", index),
		DisplayName: fmt.Sprintf("CPU %d", index+1),
		Level:       LevelMedium,
	}
	p.byID[identity.UserID] = identity
	return identity
}

// Seed turns a bot identity into an engine seat.
func (identity BotIdentity) Seed() domain.PlayerSeed {
	name := identity.DisplayName
	if name == "" {
		name = identity.Username
	}
	return domain.PlayerSeed{ID: identity.UserID, Username: name, Kind: domain.KindBot}
}
