package check

import (
	"fmt"

	"github.com/visa2any/fareguard/internal/dataType"
)

// RateViolation evaluates an observed in-window count against the
// class budget. The observed count already includes the current
// request, so exactly limit requests pass and the next one is flagged.
func RateViolation(class dataType.RequestClass, observed int64, budget dataType.RateBudget, weights dataType.ScoreWeights) (int, []string) {
	if observed <= budget.Limit {
		return 0, nil
	}
	reason := fmt.Sprintf("%s rate limit exceeded: %d/%d in %s", class, observed, budget.Limit, budget.Window)
	return weights.RateViolation, []string{reason}
}
