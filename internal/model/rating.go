package model

import (
	"errors"
	"math"
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// ErrInvalidRating is returned for ratings outside [MinRating, MaxRating].
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// AddRating folds stars into the running average, rounded to one decimal.
func (b *Bot) AddRating(stars int) error {
	if stars < MinRating || stars > MaxRating {
		return ErrInvalidRating
	}
	total := b.Rating*float64(b.RatingsCount) + float64(stars)
	b.RatingsCount++
	b.Rating = math.Round(total/float64(b.RatingsCount)*10) / 10
	return nil
}
