// Package cache keeps snapshots of running games in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"daifugo/internal/app"
	"daifugo/internal/domain"
	"daifugo/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	gamePrefix     = "game:"
	cardsPrefix    = "game:cards:"
	activeGamesKey = "active_games"

	// DefaultTTL is how long an untouched game survives.
	DefaultTTL = time.Hour
)

// ErrNotFound is returned when a game is not cached.
var ErrNotFound = errors.New("game not cached")

// Options configures Dial.
type Options struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
	TTL      time.Duration
}

// Store is a Redis-backed snapshot store.
type Store struct {
	rdb redis.UniversalClient
	ttl time.Duration
	log logrus.FieldLogger
}

var _ ports.SnapshotStore = (*Store)(nil)

// New wraps an existing client.
func New(rdb redis.UniversalClient, ttl time.Duration, logger logrus.FieldLogger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{rdb: rdb, ttl: ttl, log: logger.WithField("component", "cache")}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, opts Options, logger logrus.FieldLogger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return New(rdb, opts.TTL, logger), nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func gameKey(id string) string  { return gamePrefix + id }
func cardsKey(id string) string { return cardsPrefix + id }
func userKey(id string) string  { return "user:" + id + ":active_game" }
func matchKey(id string) string { return "match:" + id + ":game" }

// SaveGame stores the snapshot under game:{id}, each hand in the
// game:cards:{id} hash, and indexes the game as active.
func (s *Store) SaveGame(ctx context.Context, snapshot app.Snapshot, hands map[string][]domain.Card) error {
	id := snapshot.GameID
	if id == "" {
		return fmt.Errorf("save game: empty game id")
	}
	state, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("save game %s: %w", id, err)
	}
	fields := make(map[string]interface{}, len(hands))
	for playerID, cards := range hands {
		raw, err := json.Marshal(cards)
		if err != nil {
			return fmt.Errorf("save game %s hand %s: %w", id, playerID, err)
		}
		fields[playerID] = raw
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, gameKey(id), state, s.ttl)
		pipe.Del(ctx, cardsKey(id))
		if len(fields) > 0 {
			pipe.HSet(ctx, cardsKey(id), fields)
			pipe.Expire(ctx, cardsKey(id), s.ttl)
		}
		pipe.SAdd(ctx, activeGamesKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save game %s: %w", id, err)
	}
	s.log.WithField("game_id", id).Debug("game cached")
	return nil
}

// LoadGame returns the cached snapshot of a game.
func (s *Store) LoadGame(ctx context.Context, gameID string) (app.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return app.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return app.Snapshot{}, fmt.Errorf("load game %s: %w", gameID, err)
	}
	var snapshot app.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return app.Snapshot{}, fmt.Errorf("decode game %s: %w", gameID, err)
	}
	return snapshot, nil
}

// LoadHand returns one player's cached hand; nil when absent.
func (s *Store) LoadHand(ctx context.Context, gameID, playerID string) ([]domain.Card, error) {
	raw, err := s.rdb.HGet(ctx, cardsKey(gameID), playerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load hand %s/%s: %w", gameID, playerID, err)
	}
	var cards []domain.Card
	if err := json.Unmarshal(raw, &cards); err != nil {
		return nil, fmt.Errorf("decode hand %s/%s: %w", gameID, playerID, err)
	}
	return cards, nil
}

// DeleteGame removes the game and its hands and drops it from the index.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, gameKey(gameID), cardsKey(gameID))
		pipe.SRem(ctx, activeGamesKey, gameID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete game %s: %w", gameID, err)
	}
	return nil
}

// ActiveGameIDs lists the indexed games, including ones whose snapshot expired.
func (s *Store) ActiveGameIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, activeGamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	return ids, nil
}

// GameExists reports whether the snapshot is still cached.
func (s *Store) GameExists(ctx context.Context, gameID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, gameKey(gameID)).Result()
	if err != nil {
		return false, fmt.Errorf("check game %s: %w", gameID, err)
	}
	return n > 0, nil
}

// ExtendTTL resets the expiry of a game and its hands to d.
func (s *Store) ExtendTTL(ctx context.Context, gameID string, d time.Duration) error {
	if d <= 0 {
		d = s.ttl
	}
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, gameKey(gameID), d)
		pipe.Expire(ctx, cardsKey(gameID), d)
		return nil
	})
	if err != nil {
		return fmt.Errorf("extend game %s: %w", gameID, err)
	}
	return nil
}

// SetUserActiveGame records which match a user is seated in.
func (s *Store) SetUserActiveGame(ctx context.Context, userID, matchID string) error {
	if err := s.rdb.Set(ctx, userKey(userID), matchID, s.ttl).Err(); err != nil {
		return fmt.Errorf("set active game for %s: %w", userID, err)
	}
	return nil
}

// UserActiveGame returns the user's current game id, or "" when none.
func (s *Store) UserActiveGame(ctx context.Context, userID string) (string, error) {
	id, err := s.rdb.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active game for %s: %w", userID, err)
	}
	return id, nil
}

// ClearUserActiveGame forgets the user's current game.
func (s *Store) ClearUserActiveGame(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, userKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear active game for %s: %w", userID, err)
	}
	return nil
}

// SetMatchGame points a match at the game it is currently running.
func (s *Store) SetMatchGame(ctx context.Context, matchID, gameID string) error {
	if err := s.rdb.Set(ctx, matchKey(matchID), gameID, s.ttl).Err(); err != nil {
		return fmt.Errorf("set game of match %s: %w", matchID, err)
	}
	return nil
}

// MatchGame returns the game a match is running, or "" when none.
func (s *Store) MatchGame(ctx context.Context, matchID string) (string, error) {
	id, err := s.rdb.Get(ctx, matchKey(matchID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get game of match %s: %w", matchID, err)
	}
	return id, nil
}

// CleanupExpired drops index entries whose snapshot has expired and returns
// how many were removed.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	ids, err := s.ActiveGameIDs(ctx)
	if err != nil {
		return 0, err
	}
	cleaned := 0
	for _, id := range ids {
		exists, err := s.GameExists(ctx, id)
		if err != nil {
			return cleaned, err
		}
		if exists {
			continue
		}
		if err := s.DeleteGame(ctx, id); err != nil {
			return cleaned, err
		}
		cleaned++
	}
	if cleaned > 0 {
		s.log.WithField("cleaned", cleaned).Info("expired games cleaned up")
	}
	return cleaned, nil
}
