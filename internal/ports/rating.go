package ports

import "context"

// RatingChange is one settled rating delta.
type RatingChange struct {
	UserID   string
	Delta    int64
	Metadata map[string]interface{}
}

// RatingPort reads and settles player ratings.
type RatingPort interface {
	// GetRating returns the current rating of userID.
	GetRating(ctx context.Context, userID string) (int64, error)

	// ApplyRatings applies the deltas of one finished game. Zero deltas are skipped.
	ApplyRatings(ctx context.Context, changes []RatingChange) error
}

// RatingSeedPort gives new accounts their starting rating exactly once.
type RatingSeedPort interface {
	// SeedRatingOnce credits rating to userID unless it was seeded before.
	// seeded is false when a previous call already did it.
	SeedRatingOnce(ctx context.Context, userID string, rating int64, metadata map[string]interface{}) (seeded bool, err error)
}
