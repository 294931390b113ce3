package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"daifugo/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	ratingSeedCollection = "onboarding"
	ratingSeedKey        = "initial_rating_v1"
)

// NakamaRatingSeedAdapter seeds starting ratings using Nakama storage + wallet updates.
type NakamaRatingSeedAdapter struct {
	nk runtime.NakamaModule
}

// NewNakamaRatingSeedAdapter creates a new rating seed adapter.
func NewNakamaRatingSeedAdapter(nk runtime.NakamaModule) *NakamaRatingSeedAdapter {
	return &NakamaRatingSeedAdapter{nk: nk}
}

// SeedRatingOnce credits the starting rating and records a marker atomically.
// The marker write uses version "*" so a second call is rejected by storage.
func (a *NakamaRatingSeedAdapter) SeedRatingOnce(ctx context.Context, userID string, rating int64, metadata map[string]interface{}) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("userID is required")
	}
	if rating < 0 {
		return false, fmt.Errorf("rating must not be negative")
	}

	marker := map[string]interface{}{
		"rating":    rating,
		"seeded_at": time.Now().UTC().Format(time.RFC3339),
	}
	value, err := json.Marshal(marker)
	if err != nil {
		return false, fmt.Errorf("failed to marshal rating marker: %w", err)
	}

	storageWrites := []*runtime.StorageWrite{
		{
			Collection:      ratingSeedCollection,
			Key:             ratingSeedKey,
			UserID:          userID,
			Value:           string(value),
			Version:         "*",
			PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		},
	}

	var walletUpdates []*runtime.WalletUpdate
	if rating > 0 {
		walletUpdates = append(walletUpdates, &runtime.WalletUpdate{
			UserID:    userID,
			Changeset: map[string]int64{walletRatingKey: rating},
			Metadata:  metadata,
		})
	}

	_, _, err = a.nk.MultiUpdate(ctx, nil, storageWrites, nil, walletUpdates, true)
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return false, nil
		}
		return false, fmt.Errorf("failed to seed rating: %w", err)
	}

	return true, nil
}

var _ ports.RatingSeedPort = (*NakamaRatingSeedAdapter)(nil)
