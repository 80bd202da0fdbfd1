package domain

import (
	"fmt"
	"time"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
)

// Pokemon is the aggregate row kept for every pokemon with at least one vote.
type Pokemon struct {
	ID            string
	PokedexNumber int
	Summary
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidatePokedexNumber rejects keys that cannot identify a pokemon.
func ValidatePokedexNumber(number int) error {
	if number <= 0 {
		return fmt.Errorf("%w: pokedex number must be positive, got %d", apperrors.ErrValidation, number)
	}
	return nil
}
