package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
)

func TestSummary_Scenario(t *testing.T) {
	var s Summary

	s = s.Insert(4)
	assert.Equal(t, Summary{Rating: 4, NumberOfVotes: 1}, s)

	s = s.Insert(2)
	assert.Equal(t, Summary{Rating: 3, NumberOfVotes: 2}, s)

	s = s.Replace(4, 0)
	assert.Equal(t, Summary{Rating: 1, NumberOfVotes: 2}, s)

	s = s.Remove(2)
	assert.Equal(t, Summary{Rating: 0, NumberOfVotes: 1}, s)

	s = s.Remove(0)
	assert.True(t, s.Empty())
	assert.Equal(t, Summary{}, s)
}

func TestSummary_RemoveRestoresPreviousState(t *testing.T) {
	base := Summary{}.Insert(1.5).Insert(4.5).Insert(3)

	got := base.Insert(3).Remove(3)
	assert.Equal(t, base.NumberOfVotes, got.NumberOfVotes)
	assert.InDelta(t, base.Rating, got.Rating, 1e-12)
}

func TestSummary_ReplaceSameValueIsIdempotent(t *testing.T) {
	s := Summary{}.Insert(2.5).Insert(5)
	assert.Equal(t, s, s.Replace(5, 5))
}

func TestSummary_ReplaceOnEmptyCountsAsInsert(t *testing.T) {
	assert.Equal(t, Summary{Rating: 2, NumberOfVotes: 1}, Summary{}.Replace(4, 2))
}

func TestSummary_ClampsDrift(t *testing.T) {
	s := Summary{Rating: 5, NumberOfVotes: 3}.Replace(4.999999999, 5)
	assert.LessOrEqual(t, s.Rating, MaxRating)

	s = Summary{Rating: 0, NumberOfVotes: 3}.Remove(1e-12)
	assert.GreaterOrEqual(t, s.Rating, MinRating)
}

func TestSummary_MatchesLedgerMean(t *testing.T) {
	values := []float64{0, 5, 3.5, 1, 2.25, 4.75, 0.5, 5, 5, 1.125}
	var s Summary
	sum := 0.0
	for _, v := range values {
		s = s.Insert(v)
		sum += v
	}
	assert.Equal(t, int64(len(values)), s.NumberOfVotes)
	assert.InEpsilon(t, sum/float64(len(values)), s.Rating, 1e-9)
	assert.False(t, s.Drifted(sum, int64(len(values))))
}

func TestSummary_Drifted(t *testing.T) {
	s := Summary{Rating: 3, NumberOfVotes: 2}
	assert.False(t, s.Drifted(6, 2))
	assert.True(t, s.Drifted(6, 3))
	assert.True(t, s.Drifted(6.01, 2))
	assert.False(t, Summary{}.Drifted(0, 0))
}

func TestSummaryFromTotals(t *testing.T) {
	assert.Equal(t, Summary{}, SummaryFromTotals(0, 0))
	assert.Equal(t, Summary{Rating: 2.5, NumberOfVotes: 4}, SummaryFromTotals(10, 4))
}

func TestValidateRating(t *testing.T) {
	for _, v := range []float64{0, 0.5, 2.75, 5} {
		require.NoError(t, ValidateRating(v), "rating %v should be accepted", v)
	}
	for _, v := range []float64{-0.01, 5.01, math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := ValidateRating(v)
		require.Error(t, err, "rating %v should be rejected", v)
		assert.True(t, errors.Is(err, apperrors.ErrValidation))
	}
}

func TestValidatePokedexNumber(t *testing.T) {
	assert.NoError(t, ValidatePokedexNumber(25))
	assert.ErrorIs(t, ValidatePokedexNumber(0), apperrors.ErrValidation)
	assert.ErrorIs(t, ValidatePokedexNumber(-4), apperrors.ErrValidation)
}
