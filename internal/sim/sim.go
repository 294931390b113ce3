// Package sim plays CPU-only Daifugo games in bulk. It is used to check the
// engine terminates under every rule combination and to compare bot levels.
package sim

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"daifugo/internal/app"
	"daifugo/internal/bot"
	"daifugo/internal/config"
	"daifugo/internal/database"
	"daifugo/internal/domain"
	"daifugo/internal/ports"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrStalled is returned when a game exceeds the move limit.
var ErrStalled = errors.New("game did not finish within the move limit")

// Config holds simulation settings.
type Config struct {
	Games         int    `env:"DAIFUGO_SIM_GAMES" envDefault:"8"`
	Players       int    `env:"DAIFUGO_SIM_PLAYERS" envDefault:"4"`
	Rounds        int    `env:"DAIFUGO_SIM_ROUNDS" envDefault:"3"`
	Workers       int    `env:"DAIFUGO_SIM_WORKERS" envDefault:"4"`
	MaxMoves      int    `env:"DAIFUGO_SIM_MAX_MOVES" envDefault:"5000"`
	Seed          int64  `env:"DAIFUGO_SIM_SEED"`
	GameConfig    string `env:"DAIFUGO_GAME_CONFIG"`
	BotIdentities string `env:"DAIFUGO_BOT_IDENTITIES"`
	ResultsDriver string `env:"DAIFUGO_RESULTS_DRIVER" envDefault:"sqlite"`
	ResultsDSN    string `env:"DAIFUGO_RESULTS_DSN"`
	LogLevel      string `env:"DAIFUGO_LOG_LEVEL" envDefault:"info"`
}

// ParseConfig reads the environment, then lets flags override it.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.IntVar(&cfg.Games, "games", cfg.Games, "number of games to play")
	fs.IntVar(&cfg.Players, "players", cfg.Players, "CPU players per game")
	fs.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "rounds per game")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "games played at once")
	fs.IntVar(&cfg.MaxMoves, "max-moves", cfg.MaxMoves, "moves before a game counts as stalled")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed, 0 for time based")
	fs.StringVar(&cfg.GameConfig, "game-config", cfg.GameConfig, "path to game_config.json")
	fs.StringVar(&cfg.BotIdentities, "bots", cfg.BotIdentities, "path to bot_identities.json")
	fs.StringVar(&cfg.ResultsDriver, "results-driver", cfg.ResultsDriver, "results database driver (sqlite, pgx)")
	fs.StringVar(&cfg.ResultsDSN, "results-dsn", cfg.ResultsDSN, "results database DSN, empty to skip recording")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.Games < 1:
		return fmt.Errorf("games must be at least 1, got %d", c.Games)
	case c.Players < domain.MinPlayers || c.Players > domain.MaxPlayers:
		return fmt.Errorf("players must be between %d and %d, got %d", domain.MinPlayers, domain.MaxPlayers, c.Players)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.MaxMoves < 1:
		return fmt.Errorf("max-moves must be at least 1, got %d", c.MaxMoves)
	}
	return nil
}

// Summary aggregates every finished game.
type Summary struct {
	Games   int
	Rounds  int
	Players map[string]*PlayerSummary
}

// PlayerSummary is one bot's record over the run.
type PlayerSummary struct {
	PlayerID    string
	DisplayName string
	Level       bot.Level
	Rating      int64
	Classes     map[string]int
}

type runner struct {
	cfg      Config
	rules    domain.RuleSettings
	game     config.GameConfig
	seats    []bot.BotIdentity
	registry *app.Registry
	results  ports.ResultsPort
	log      logrus.FieldLogger

	mu      sync.Mutex
	summary Summary
}

// Run plays cfg.Games games and writes a report to out.
func Run(ctx context.Context, cfg Config, out io.Writer, logger logrus.FieldLogger) (Summary, error) {
	if err := cfg.validate(); err != nil {
		return Summary{}, err
	}
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if cfg.GameConfig != "" {
		if err := config.LoadGameConfig(cfg.GameConfig); err != nil {
			return Summary{}, err
		}
	}
	game := config.GetGameConfig()
	rules, err := game.Rules(&domain.RuleOverrides{Rounds: &cfg.Rounds})
	if err != nil {
		return Summary{}, err
	}

	pool := bot.Default()
	if cfg.BotIdentities != "" {
		if err := bot.LoadIdentities(cfg.BotIdentities); err != nil {
			return Summary{}, err
		}
		pool = bot.Default()
	}
	seats, err := pickSeats(pool, cfg.Players)
	if err != nil {
		return Summary{}, err
	}

	r := &runner{
		cfg:      cfg,
		rules:    rules,
		game:     game,
		seats:    seats,
		registry: app.NewRegistry(logger),
		log:      logger,
		summary:  Summary{Players: make(map[string]*PlayerSummary)},
	}

	var store *database.Store
	if cfg.ResultsDSN != "" {
		store, err = database.Open(ctx, cfg.ResultsDriver, cfg.ResultsDSN, logger)
		if err != nil {
			return Summary{}, err
		}
		defer store.Close()
		r.results = store
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Games; i++ {
		g.Go(func() error {
			return r.playGame(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return r.summary, err
	}

	if open := r.registry.Len(); open != 0 {
		return r.summary, fmt.Errorf("%d games left open after the run", open)
	}
	logger.WithFields(logrus.Fields{"games": r.summary.Games, "rounds": r.summary.Rounds}).Info("simulation finished")
	if err := printSummary(out, r.summary); err != nil {
		return r.summary, err
	}
	if store != nil {
		if err := printLeaderboard(ctx, out, store); err != nil {
			return r.summary, err
		}
	}
	return r.summary, nil
}

// pickSeats takes the first n distinct identities of the pool.
func pickSeats(pool *bot.Pool, n int) ([]bot.BotIdentity, error) {
	seen := make(map[string]bool, n)
	seats := make([]bot.BotIdentity, 0, n)
	for i := 0; len(seats) < n && i < n*2; i++ {
		identity := pool.Identity(i)
		if seen[identity.UserID] {
			continue
		}
		seen[identity.UserID] = true
		seats = append(seats, identity)
	}
	if len(seats) < n {
		return nil, fmt.Errorf("bot pool has %d identities, need %d", len(seats), n)
	}
	return seats, nil
}

func (r *runner) rng(game int) *rand.Rand {
	if r.cfg.Seed != 0 {
		return rand.New(rand.NewSource(r.cfg.Seed + int64(game)))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano() + int64(game)))
}

func (r *runner) playGame(ctx context.Context, n int) error {
	rng := r.rng(n)

	seeds := make([]domain.PlayerSeed, 0, len(r.seats))
	agents := make(map[string]*bot.Agent, len(r.seats))
	for _, identity := range r.seats {
		seeds = append(seeds, identity.Seed())
		agent, err := bot.NewAgent(identity, rng)
		if err != nil {
			return err
		}
		agents[identity.UserID] = agent
	}

	rules := r.rules
	id, _, err := r.registry.Create(seeds, &rules, app.WithRand(rng), app.WithHistorySize(r.game.HistorySize))
	if err != nil {
		return fmt.Errorf("game %d: %w", n, err)
	}
	defer r.registry.Remove(id)
	log := r.log.WithField("game_id", id)

	var (
		results []app.RoundResult
		done    bool
	)
	for moves := 0; !done; moves++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if moves >= r.cfg.MaxMoves {
			return fmt.Errorf("%w: game %s after %d moves", ErrStalled, id, moves)
		}
		err := r.registry.Do(id, func(e *app.GameEngine) error {
			if e.State() == domain.StateFinished {
				results = e.Results()
				done = true
				return nil
			}
			agent := agents[e.NextActor()]
			if agent == nil {
				return fmt.Errorf("no agent to act in state %s", e.State())
			}
			_, err := agent.Act(e)
			return err
		})
		if err != nil {
			return fmt.Errorf("game %s: %w", id, err)
		}
	}

	if r.results != nil {
		record := ports.GameRecord{
			GameID:     id,
			MatchID:    "sim",
			Rules:      r.rules,
			Results:    results,
			RatingStep: r.game.RatingStep,
			FinishedAt: time.Now(),
		}
		if err := r.results.RecordGame(ctx, record); err != nil {
			return err
		}
	}

	r.collect(results)
	log.WithField("rounds", len(results)).Debug("game finished")
	return nil
}

func (r *runner) collect(results []app.RoundResult) {
	deltas := app.RatingDeltas(results, r.game.RatingStep)
	tally := app.ClassTally(results)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Games++
	r.summary.Rounds += len(results)
	for _, identity := range r.seats {
		ps := r.summary.Players[identity.UserID]
		if ps == nil {
			ps = &PlayerSummary{
				PlayerID:    identity.UserID,
				DisplayName: identity.Seed().Username,
				Level:       identity.Level,
				Classes:     make(map[string]int),
			}
			r.summary.Players[identity.UserID] = ps
		}
		ps.Rating += deltas[identity.UserID]
		for class, n := range tally[identity.UserID] {
			ps.Classes[class] += n
		}
	}
}

// Ranked returns the players by rating, best first.
func (s Summary) Ranked() []*PlayerSummary {
	out := make([]*PlayerSummary, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}

func printSummary(out io.Writer, s Summary) error {
	fmt.Fprintf(out, "%d games, %d rounds\n\n", s.Games, s.Rounds)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAYER\tLEVEL\tRATING\tDAIFUGO\tFUGO\tHEIMIN\tDAIHINMIN")
	for _, p := range s.Ranked() {
		fmt.Fprintf(tw, "%s\t%s\t%+d\t%d\t%d\t%d\t%d\n",
			p.DisplayName, p.Level, p.Rating,
			p.Classes[string(domain.ClassDaifugo)],
			p.Classes[string(domain.ClassFugo)],
			p.Classes[string(domain.ClassHeimin)],
			p.Classes[string(domain.ClassDaihinmin)])
	}
	return tw.Flush()
}

func printLeaderboard(ctx context.Context, out io.Writer, store *database.Store) error {
	players, err := store.Leaderboard(ctx, 10, 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nRecorded leaderboard")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPLAYER\tRATING\tROUNDS\tWIN RATE")
	for _, p := range players {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.2f\n", p.Position, p.Username, p.Rating, p.RoundsPlayed, p.WinRate)
	}
	return tw.Flush()
}
