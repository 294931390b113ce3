package nakama

import (
	"context"
	"fmt"

	"daifugo/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// usernameSuffixLen is how much of the user id disambiguates a taken username.
const usernameSuffixLen = 6

// NakamaAccountAdapter implements ports.AccountPort using Nakama's account API.
type NakamaAccountAdapter struct {
	nk runtime.NakamaModule
}

// NewNakamaAccountAdapter creates a new account adapter.
func NewNakamaAccountAdapter(nk runtime.NakamaModule) *NakamaAccountAdapter {
	return &NakamaAccountAdapter{nk: nk}
}

// UpdateProfile names a human account. Friendly names repeat, so when the
// username is rejected it is retried once with part of the user id appended.
// The display name is kept as given.
func (a *NakamaAccountAdapter) UpdateProfile(ctx context.Context, userID, username, displayName string) error {
	metadata := map[string]interface{}{"is_bot": false}

	err := a.nk.AccountUpdateId(ctx, userID, username, metadata, displayName, "", "", "", "")
	if err == nil {
		return nil
	}

	suffix := userID
	if len(suffix) > usernameSuffixLen {
		suffix = suffix[:usernameSuffixLen]
	}
	retry := fmt.Sprintf("%s_%s", username, suffix)
	if err2 := a.nk.AccountUpdateId(ctx, userID, retry, metadata, displayName, "", "", "", ""); err2 != nil {
		return fmt.Errorf("update profile of %s: %w", userID, err)
	}
	return nil
}

var _ ports.AccountPort = (*NakamaAccountAdapter)(nil)
