package onboarding

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"daifugo/internal/ports"
)

// DefaultInitialRating is the rating a new account starts with.
const DefaultInitialRating int64 = 1000

// Result captures non-fatal onboarding outcomes.
type Result struct {
	// ProfileUpdateErr is set when the profile update failed but onboarding continued.
	ProfileUpdateErr error
	// RatingSeeded is false when the account already had its starting rating.
	RatingSeeded bool
	DisplayName  string
}

// Service handles post-auth onboarding for new users.
type Service struct {
	accounts      ports.AccountPort
	ratings       ports.RatingSeedPort
	initialRating int64
	rng           *rand.Rand
}

// NewService constructs an onboarding service with required ports.
// accounts/ratings must be non-nil; rng may be nil to use a time-seeded default.
// initialRating <= 0 uses DefaultInitialRating.
func NewService(accounts ports.AccountPort, ratings ports.RatingSeedPort, initialRating int64, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if initialRating <= 0 {
		initialRating = DefaultInitialRating
	}
	return &Service{
		accounts:      accounts,
		ratings:       ratings,
		initialRating: initialRating,
		rng:           rng,
	}
}

// OnboardNewUser gives a newly created account a display name and its
// starting rating. The error is non-nil only when the rating could not be seeded.
func (s *Service) OnboardNewUser(ctx context.Context, userID string) (Result, error) {
	if s.accounts == nil || s.ratings == nil {
		return Result{}, fmt.Errorf("onboarding service not configured")
	}

	result := Result{DisplayName: s.generateFriendlyName()}
	if err := s.accounts.UpdateProfile(ctx, userID, result.DisplayName, result.DisplayName); err != nil {
		// Profile updates are best-effort; the rating seed is what matters.
		result.ProfileUpdateErr = err
	}

	seeded, err := s.ratings.SeedRatingOnce(ctx, userID, s.initialRating, map[string]interface{}{
		"reason": "initial_rating",
	})
	if err != nil {
		return result, fmt.Errorf("failed to seed rating: %w", err)
	}
	result.RatingSeeded = seeded

	return result, nil
}

func (s *Service) generateFriendlyName() string {
	adjectives := []string{"Lucky", "Bold", "Sly", "Grand", "Humble", "Royal", "Swift", "Calm", "Crafty", "Noble"}
	nouns := []string{"Joker", "King", "Queen", "Knave", "Baron", "Merchant", "Peasant", "Duke", "Jester", "Rogue"}

	adj := adjectives[s.rng.Intn(len(adjectives))]
	noun := nouns[s.rng.Intn(len(nouns))]
	num := s.rng.Intn(9000) + 1000

	return fmt.Sprintf("%s%s%d", adj, noun, num)
}
