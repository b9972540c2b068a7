package contest

import (
	"fmt"

	"joke_contest/internal/domain"
)

// ShouldContinue reports whether another generate/evaluate cycle follows the
// given round.
func ShouldContinue(round, max int) bool {
	return round < max
}

// ValidateMaxRounds rejects a round limit below one.
func ValidateMaxRounds(max int) error {
	if max < 1 {
		return fmt.Errorf("%w: max rounds must be >= 1, got %d", domain.ErrConfiguration, max)
	}
	return nil
}

// RoundState tracks the last completed round against the limit.
type RoundState struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Complete marks round as finished. Rounds must complete in sequence
// starting from 1.
func (s *RoundState) Complete(round int) error {
	if round != s.Current+1 {
		return fmt.Errorf("%w: round %d completed after round %d", domain.ErrInvariant, round, s.Current)
	}
	if round > s.Max {
		return fmt.Errorf("%w: round %d exceeds max %d", domain.ErrInvariant, round, s.Max)
	}
	s.Current = round
	return nil
}
