package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env is the deployment configuration read from environment variables.
type Env struct {
	BotsEnabled       bool          `env:"DAIFUGO_BOTS_ENABLED" envDefault:"true"`
	GameConfigPath    string        `env:"DAIFUGO_GAME_CONFIG" envDefault:"data/game_config.json"`
	BotIdentitiesPath string        `env:"DAIFUGO_BOT_IDENTITIES" envDefault:"data/bot_identities.json"`
	LogLevel          string        `env:"DAIFUGO_LOG_LEVEL" envDefault:"info"`
	RedisAddr         string        `env:"DAIFUGO_REDIS_ADDR"`
	RedisPassword     string        `env:"DAIFUGO_REDIS_PASSWORD"`
	RedisDB           int           `env:"DAIFUGO_REDIS_DB" envDefault:"0"`
	RedisTimeout      time.Duration `env:"DAIFUGO_REDIS_TIMEOUT" envDefault:"2s"`
	ResultsDriver     string        `env:"DAIFUGO_RESULTS_DRIVER" envDefault:"sqlite"`
	ResultsDSN        string        `env:"DAIFUGO_RESULTS_DSN"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := ParseEnv(&e); err != nil {
		return Env{}, err
	}
	return e, nil
}

// FromRuntimeEnv reads Env from the key/value map a Nakama runtime exposes
// under runtime.RUNTIME_CTX_ENV. Keys are matched case-insensitively so
// "daifugo_redis_addr" in the server config works.
func FromRuntimeEnv(vars map[string]string) (Env, error) {
	upper := make(map[string]string, len(vars))
	for k, v := range vars {
		upper[strings.ToUpper(k)] = v
	}
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: upper}); err != nil {
		return Env{}, fmt.Errorf("parse runtime env: %w", err)
	}
	return e, nil
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// CacheEnabled reports whether a Redis address is configured.
func (e Env) CacheEnabled() bool {
	return strings.TrimSpace(e.RedisAddr) != ""
}

// ResultsDriverNakama stores results in the database Nakama itself runs on.
const ResultsDriverNakama = "nakama"

// ResultsEnabled reports whether a results database is configured.
func (e Env) ResultsEnabled() bool {
	return e.UseNakamaDB() || strings.TrimSpace(e.ResultsDSN) != ""
}

// UseNakamaDB reports whether results go to Nakama's own database.
func (e Env) UseNakamaDB() bool {
	return e.ResultsDriver == ResultsDriverNakama
}
