package check

import (
	"fmt"

	"github.com/visa2any/fareguard/internal/dataType"
)

// Behavior scores the request mix across every class window of one
// client. Purely derived from the rate-limiter counters, no new state.
func Behavior(counts map[dataType.RequestClass]int64, rule dataType.DetectionRule) (int, []string) {
	score := 0
	var reasons []string

	var total int64
	for _, count := range counts {
		total += count
	}
	if total > rule.HighVolumeThreshold {
		score += rule.Weights.HighVolume
		reasons = append(reasons, fmt.Sprintf("high request volume: %d across all classes", total))
	}

	if counts[dataType.ClassSearch] >= rule.MinSearchBurst && counts[dataType.ClassPage] == 0 {
		score += rule.Weights.SearchWithoutPages
		reasons = append(reasons, fmt.Sprintf("%d search requests with no page views", counts[dataType.ClassSearch]))
	}

	return score, reasons
}
