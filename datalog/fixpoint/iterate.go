package fixpoint

import (
	"errors"
	"fmt"
)

// ErrDiverged is returned when an iteration exceeds its round limit
var ErrDiverged = errors.New("fixpoint: iteration did not converge")

// DefaultMaxRounds bounds Iterate when no explicit limit is configured
const DefaultMaxRounds = 1 << 20

// Iterate calls step with increasing round numbers until it reports no
// change. It returns the number of rounds executed. A limit <= 0 means
// DefaultMaxRounds.
//
// Iterate is not cancellable; a started fixed point always runs to
// quiescence or to the limit.
func Iterate(limit int, step func(round int) (changed bool, err error)) (int, error) {
	if limit <= 0 {
		limit = DefaultMaxRounds
	}
	for round := 0; ; round++ {
		if round >= limit {
			return round, fmt.Errorf("after %d rounds: %w", round, ErrDiverged)
		}
		changed, err := step(round)
		if err != nil {
			return round + 1, err
		}
		if !changed {
			return round + 1, nil
		}
	}
}
