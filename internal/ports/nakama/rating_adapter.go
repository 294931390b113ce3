package nakama

import (
	"context"
	"encoding/json"
	"fmt"

	"daifugo/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// walletRatingKey is the wallet currency that holds a player's rating.
const walletRatingKey = "rating"

// NakamaRatingAdapter implements ports.RatingPort using Nakama's wallet system.
type NakamaRatingAdapter struct {
	nk runtime.NakamaModule
}

// NewNakamaRatingAdapter creates a new rating adapter.
func NewNakamaRatingAdapter(nk runtime.NakamaModule) *NakamaRatingAdapter {
	return &NakamaRatingAdapter{
		nk: nk,
	}
}

// GetRating retrieves the current rating for a user.
func (a *NakamaRatingAdapter) GetRating(ctx context.Context, userID string) (int64, error) {
	account, err := a.nk.AccountGetId(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get account: %w", err)
	}

	var wallet map[string]int64
	if account.Wallet != "" {
		if err := json.Unmarshal([]byte(account.Wallet), &wallet); err != nil {
			return 0, fmt.Errorf("failed to unmarshal wallet: %w", err)
		}
	}

	return wallet[walletRatingKey], nil
}

// ApplyRatings writes every non-zero delta to the players' wallets in one
// ledgered update.
func (a *NakamaRatingAdapter) ApplyRatings(ctx context.Context, changes []ports.RatingChange) error {
	updates := make([]*runtime.WalletUpdate, 0, len(changes))
	for _, change := range changes {
		if change.Delta == 0 {
			continue
		}
		updates = append(updates, &runtime.WalletUpdate{
			UserID:    change.UserID,
			Changeset: map[string]int64{walletRatingKey: change.Delta},
			Metadata:  change.Metadata,
		})
	}
	if len(updates) == 0 {
		return nil
	}

	if _, err := a.nk.WalletsUpdate(ctx, updates, true); err != nil {
		return fmt.Errorf("failed to apply ratings: %w", err)
	}
	return nil
}

var _ ports.RatingPort = (*NakamaRatingAdapter)(nil)
