package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseRating parses a CLI rating argument.
// "none", "clear" and the empty string clear the rating (nil, nil).
func ParseRating(input string) (*float64, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	switch s {
	case "", "none", "clear":
		return nil, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > 5 {
		return nil, ErrInvalidRating(input)
	}
	return &v, nil
}

// ParseMovieID parses a positive catalog id.
func ParseMovieID(input string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil || id <= 0 {
		return 0, WrapWithSuggestion(
			fmt.Errorf("invalid movie id %q", input),
			"Movie ids are the positive integers shown by 'gosyncmovies movie list'",
		)
	}
	return id, nil
}
