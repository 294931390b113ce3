// Command nakama builds the Daifugo server plugin:
//
//	go build -buildmode=plugin -trimpath -o daifugo.so ./cmd/nakama
package main

import (
	"context"
	"database/sql"

	"daifugo/internal/ports/nakama"

	"github.com/heroiclabs/nakama-common/runtime"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// InitModule is the symbol Nakama looks up when loading the plugin.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	logger.WithField("version", version).Info("Loading Daifugo module.")
	return nakama.InitModule(ctx, logger, db, nk, initializer)
}
