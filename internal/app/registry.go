package app

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"daifugo/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Registry is the keyed store of running games. Each game is reachable only
// through Do, which holds that game's lock for the duration of the callback.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*table
	log    logrus.FieldLogger
	seed   atomic.Int64
}

type table struct {
	mu     sync.Mutex
	engine *GameEngine
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := &Registry{
		tables: make(map[string]*table),
		log:    logger,
	}
	r.seed.Store(time.Now().UnixNano())
	return r
}

// Create seats the players in a new game and returns its id and first
// snapshot. Every engine gets its own random source; options must not
// share one between games.
func (r *Registry) Create(seeds []domain.PlayerSeed, rules *domain.RuleSettings, opts ...Option) (string, Snapshot, error) {
	id := uuid.NewString()
	base := []Option{
		WithGameID(id),
		WithLogger(r.log),
		WithRand(rand.New(rand.NewSource(r.seed.Add(1)))),
	}
	engine := NewEngine(append(base, opts...)...)
	if err := engine.InitializeGame(seeds, rules); err != nil {
		return "", Snapshot{}, err
	}

	r.mu.Lock()
	r.tables[id] = &table{engine: engine}
	r.mu.Unlock()

	r.log.WithField("game_id", id).Debug("game registered")
	return id, engine.GetGameState(), nil
}

// Do runs fn with exclusive access to the game's engine.
func (r *Registry) Do(id string, fn func(*GameEngine) error) error {
	r.mu.RLock()
	t, ok := r.tables[id]
	r.mu.RUnlock()
	if !ok {
		return ErrGameNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(t.engine)
}

// Remove drops a game. It reports whether the game existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[id]; !ok {
		return false
	}
	delete(r.tables, id)
	r.log.WithField("game_id", id).Debug("game removed")
	return true
}

// IDs returns the registered game ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tables))
	for id := range r.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports how many games are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}
