package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
)

const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Rating is a single user's current rating for a pokemon (one ledger row).
type Rating struct {
	UserID        string
	PokemonID     string
	PokedexNumber int
	Value         float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidateRating accepts any finite value in the closed interval [0, 5].
func ValidateRating(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < MinRating || value > MaxRating {
		return fmt.Errorf("%w: rating must be within [%g, %g], got %v", apperrors.ErrValidation, MinRating, MaxRating, value)
	}
	return nil
}
