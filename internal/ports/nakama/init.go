package nakama

import (
	"context"
	"database/sql"

	"daifugo/internal/bot"
	"daifugo/internal/cache"
	"daifugo/internal/config"
	"daifugo/internal/database"

	"github.com/heroiclabs/nakama-common/runtime"
)

// InitModule wires RPCs, hooks and match handlers for Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	vars, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	env, err := config.FromRuntimeEnv(vars)
	if err != nil {
		return err
	}

	if err := config.LoadGameConfig(env.GameConfigPath); err != nil {
		logger.Warn("InitModule: Could not load game config, using defaults: %v", err)
	}
	cfg := config.GetGameConfig()

	if err := bot.LoadIdentities(env.BotIdentitiesPath); err != nil {
		logger.Warn("InitModule: Could not load bot identities: %v", err)
	}
	if env.BotsEnabled {
		bot.ProvisionBots(ctx, nk, logger)
	}

	deps := Dependencies{Env: env}
	storeLog := newBridgeLogger(logger, parseLevel(env.LogLevel))

	if env.CacheEnabled() {
		store, err := cache.Dial(ctx, cache.Options{
			Addr:     env.RedisAddr,
			Password: env.RedisPassword,
			DB:       env.RedisDB,
			Timeout:  env.RedisTimeout,
			TTL:      cfg.SnapshotTTL(),
		}, storeLog)
		if err != nil {
			logger.Error("InitModule: Redis unavailable, game snapshots disabled: %v", err)
		} else {
			if cleaned, err := store.CleanupExpired(ctx); err != nil {
				logger.Warn("InitModule: Failed to clean up expired games: %v", err)
			} else if cleaned > 0 {
				logger.Info("InitModule: Removed %d expired games from the cache.", cleaned)
			}
			deps.Snapshots = store
			deps.ActiveGames = store
			deps.Resume = store
		}
	}

	if env.ResultsEnabled() {
		var (
			store *database.Store
			err   error
		)
		if env.UseNakamaDB() {
			store, err = database.Attach(ctx, db, database.DriverPostgres, storeLog)
		} else {
			store, err = database.Open(ctx, env.ResultsDriver, env.ResultsDSN, storeLog)
		}
		if err != nil {
			logger.Error("InitModule: Results store unavailable, games will not be recorded: %v", err)
		} else {
			deps.Results = store
			deps.Stats = store
		}
	}

	if err := register(initializer, deps, cfg.Seats); err != nil {
		return err
	}

	logger.Info("Daifugo Go module loaded.")
	return nil
}

func register(initializer runtime.Initializer, deps Dependencies, seats int) error {
	if err := initializer.RegisterRpc(RpcQuickMatch, rpcQuickMatch(deps, seats)); err != nil {
		return err
	}
	if deps.Stats != nil {
		if err := initializer.RegisterRpc(RpcPlayerStats, rpcPlayerStats(deps.Stats)); err != nil {
			return err
		}
		if err := initializer.RegisterRpc(RpcLeaderboard, rpcLeaderboard(deps.Stats)); err != nil {
			return err
		}
		if err := initializer.RegisterRpc(RpcGameRounds, rpcGameRounds(deps.Stats)); err != nil {
			return err
		}
	}
	if deps.Resume != nil {
		if err := initializer.RegisterRpc(RpcResumeGame, rpcResumeGame(deps.Resume)); err != nil {
			return err
		}
	}

	if err := initializer.RegisterAfterAuthenticateDevice(AfterAuthenticateDevice); err != nil {
		return err
	}

	return initializer.RegisterMatch(MatchNameDaifugo, func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
		return newMatchHandler(deps), nil
	})
}
