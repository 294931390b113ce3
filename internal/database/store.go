// Package database persists finished games and derives player statistics
// from them. SQLite is the default backend; Postgres is reached through pgx.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"daifugo/internal/app"
	"daifugo/internal/domain"
	"daifugo/internal/ports"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// ErrPlayerNotFound is returned when a player has no recorded rounds.
var ErrPlayerNotFound = errors.New("player not found")

// Store persists round results in SQL.
type Store struct {
	db     *sql.DB
	driver string
	owned  bool // Close closes db only when Open created it
	log    logrus.FieldLogger
}

var _ ports.ResultsPort = (*Store)(nil)

// Open connects to the database, applies migrations and returns the store.
// driver is DriverSQLite or DriverPostgres ("postgres" is accepted as an alias).
func Open(ctx context.Context, driver, dsn string, logger logrus.FieldLogger) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("results dsn is required")
	}
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
	case DriverPostgres, "postgres":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported results driver %q", driver)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One connection keeps in-memory databases alive and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	s := &Store{db: db, driver: driver, owned: true, log: logger.WithField("component", "results")}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Attach uses a handle opened elsewhere, such as the one Nakama hands to
// InitModule, and applies migrations. Close leaves the handle open.
func Attach(ctx context.Context, db *sql.DB, driver string, logger logrus.FieldLogger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("results db is nil")
	}
	if driver == "postgres" {
		driver = DriverPostgres
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported results driver %q", driver)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Store{db: db, driver: driver, log: logger.WithField("component", "results")}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RecordGame stores every round of a finished game in one transaction.
func (s *Store) RecordGame(ctx context.Context, record ports.GameRecord) error {
	if record.GameID == "" {
		return fmt.Errorf("game id is required")
	}
	if len(record.Results) == 0 {
		return nil
	}
	step := record.RatingStep
	if step <= 0 {
		step = app.DefaultRatingStep
	}
	finishedAt := record.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	rules, err := json.Marshal(record.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save game %s: %w", record.GameID, err)
	}
	defer func() { _ = tx.Rollback() }()

	insertRound := s.rebind(`INSERT INTO rounds (id, game_id, match_id, round_no, player_count, rules, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	insertPlayer := s.rebind(`INSERT INTO round_players (round_id, player_id, username, kind, finish_rank, class, cards_left, rating_delta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, result := range record.Results {
		roundID := uuid.NewString()
		if _, err := tx.ExecContext(ctx, insertRound,
			roundID, record.GameID, record.MatchID, result.Round, len(result.Standings), string(rules), finishedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("save game %s round %d: %w", record.GameID, result.Round, err)
		}
		deltas := app.RatingDeltas([]app.RoundResult{result}, step)
		for _, st := range result.Standings {
			if _, err := tx.ExecContext(ctx, insertPlayer,
				roundID, st.PlayerID, st.Username, string(st.Kind), st.Rank, string(st.Class), st.CardsLeft, deltas[st.PlayerID],
			); err != nil {
				return fmt.Errorf("save game %s player %s: %w", record.GameID, st.PlayerID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save game %s: %w", record.GameID, err)
	}

	s.log.WithFields(logrus.Fields{
		"game_id": record.GameID,
		"rounds":  len(record.Results),
	}).Info("game recorded")
	return nil
}

// PlayerStats aggregates a player's recorded rounds.
type PlayerStats struct {
	PlayerID     string  `json:"player_id"`
	Username     string  `json:"username"`
	GamesPlayed  int     `json:"games_played"`
	RoundsPlayed int     `json:"rounds_played"`
	RoundsWon    int     `json:"rounds_won"`
	Rating       int64   `json:"rating"` // sum of rating deltas
	WinRate      float64 `json:"win_rate"`
	Position     int     `json:"position"`
}

const statsSelect = `SELECT rp.player_id,
       MAX(rp.username),
       COUNT(DISTINCT r.game_id),
       COUNT(*),
       SUM(CASE WHEN rp.finish_rank = 1 THEN 1 ELSE 0 END),
       SUM(rp.rating_delta)
  FROM round_players rp
  JOIN rounds r ON r.id = rp.round_id`

func scanStats(row interface{ Scan(...any) error }) (PlayerStats, error) {
	var st PlayerStats
	if err := row.Scan(&st.PlayerID, &st.Username, &st.GamesPlayed, &st.RoundsPlayed, &st.RoundsWon, &st.Rating); err != nil {
		return PlayerStats{}, err
	}
	if st.RoundsPlayed > 0 {
		st.WinRate = float64(st.RoundsWon) / float64(st.RoundsPlayed)
	}
	return st, nil
}

// Stats returns the aggregate statistics of one player, including their
// leaderboard position.
func (s *Store) Stats(ctx context.Context, playerID string) (PlayerStats, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(statsSelect+` WHERE rp.player_id = ? GROUP BY rp.player_id`), playerID)
	st, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PlayerStats{}, ErrPlayerNotFound
	}
	if err != nil {
		return PlayerStats{}, fmt.Errorf("load stats %s: %w", playerID, err)
	}

	var above int
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM (
		SELECT player_id, SUM(rating_delta) AS rating FROM round_players GROUP BY player_id
	) t WHERE t.rating > ?`), st.Rating).Scan(&above)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("load position %s: %w", playerID, err)
	}
	st.Position = above + 1
	return st, nil
}

// Leaderboard lists players by rating, then rounds won.
func (s *Store) Leaderboard(ctx context.Context, limit, offset int) ([]PlayerStats, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(statsSelect+`
		GROUP BY rp.player_id
		ORDER BY SUM(rp.rating_delta) DESC, SUM(CASE WHEN rp.finish_rank = 1 THEN 1 ELSE 0 END) DESC, rp.player_id
		LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	defer rows.Close()

	var out []PlayerStats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		st.Position = offset + len(out) + 1
		out = append(out, st)
	}
	return out, rows.Err()
}

// GameRounds reloads the standings of a recorded game in round order.
func (s *Store) GameRounds(ctx context.Context, gameID string) ([]app.RoundResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT r.round_no, rp.player_id, rp.username, rp.kind, rp.finish_rank, rp.class, rp.cards_left
		  FROM rounds r
		  JOIN round_players rp ON rp.round_id = r.id
		 WHERE r.game_id = ?
		 ORDER BY r.round_no, rp.finish_rank`), gameID)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	defer rows.Close()

	var out []app.RoundResult
	for rows.Next() {
		var (
			round       int
			st          app.Standing
			kind, class string
		)
		if err := rows.Scan(&round, &st.PlayerID, &st.Username, &kind, &st.Rank, &class, &st.CardsLeft); err != nil {
			return nil, fmt.Errorf("scan game %s: %w", gameID, err)
		}
		st.Kind = domain.PlayerKind(kind)
		st.Class = domain.Class(class)
		if len(out) == 0 || out[len(out)-1].Round != round {
			out = append(out, app.RoundResult{Round: round})
		}
		out[len(out)-1].Standings = append(out[len(out)-1].Standings, st)
	}
	return out, rows.Err()
}
